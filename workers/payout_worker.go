package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"pocket-bounty/models"
	"pocket-bounty/services"

	"gorm.io/gorm"
)

// PayoutReconciler closes the loop on withdrawals: the balance is debited
// the moment a withdrawal is requested, but the provider transfer settles
// asynchronously. This worker polls pending withdrawals, marks the ones
// that landed completed, and refunds the debit for transfers that failed.
type PayoutReconciler struct {
	DB       *gorm.DB
	Ledger   *services.LedgerService
	Payments *services.PaymentsClient
}

func NewPayoutReconciler(db *gorm.DB, ledger *services.LedgerService, payments *services.PaymentsClient) *PayoutReconciler {
	return &PayoutReconciler{DB: db, Ledger: ledger, Payments: payments}
}

// PollPayouts runs reconciliation on a fixed interval until ctx is done.
func PollPayouts(ctx context.Context, r *PayoutReconciler, pollInterval time.Duration) {
	log.Println("Starting payout reconciliation worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Payout reconciliation stopped.")
			return
		case <-ticker.C:
			reconciled, err := r.ReconcileOnce(ctx)
			if err != nil {
				log.Printf("[payouts] reconciliation pass failed: %v", err)
				continue
			}
			if reconciled > 0 {
				log.Printf("[payouts] reconciled %d withdrawal(s)", reconciled)
			}
		}
	}
}

// ReconcileOnce checks every pending withdrawal that has a provider payout
// attached and reports how many reached a terminal state.
func (r *PayoutReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	var pending []models.Transaction
	err := r.DB.WithContext(ctx).
		Where("type = ? AND status = ? AND provider_ref IS NOT NULL",
			models.TransactionTypeWithdrawal, models.TransactionStatusPending).
		Limit(100).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("failed to scan pending withdrawals: %w", err)
	}

	reconciled := 0
	for _, txn := range pending {
		payout, err := r.Payments.GetPayout(*txn.ProviderRef)
		if err != nil {
			log.Printf("[payouts] provider lookup failed for %s: %v", *txn.ProviderRef, err)
			continue
		}
		switch payout.Status {
		case "paid":
			res := r.DB.Model(&models.Transaction{}).
				Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
				Update("status", models.TransactionStatusCompleted)
			if res.Error != nil {
				log.Printf("[payouts] failed to complete withdrawal %s: %v", txn.ID, res.Error)
				continue
			}
			reconciled++
		case "failed":
			reason := payout.FailureCode
			if reason == "" {
				reason = "transfer failed"
			}
			if err := r.Ledger.FailPendingWithdrawal(txn.ID, reason); err != nil {
				log.Printf("[payouts] failed to refund withdrawal %s: %v", txn.ID, err)
				continue
			}
			reconciled++
		}
		// "pending" stays pending until a later pass.
	}
	return reconciled, nil
}
