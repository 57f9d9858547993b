package services

import (
	"errors"
	"fmt"
	"strings"

	"pocket-bounty/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WelcomePoints is granted once when a wallet row is first created.
const WelcomePoints = 25

// InsufficientFundsError carries the exact shortfall so handlers can tell
// the caller how much more they need.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: need $%s, have $%s (short $%s)",
		e.Required.StringFixed(2), e.Available.StringFixed(2), e.Required.Sub(e.Available).StringFixed(2))
}

type InsufficientPointsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: need %d, have %d", e.Required, e.Available)
}

// LedgerService owns every balance mutation. All movements run inside one
// database transaction with the wallet row locked FOR UPDATE, so a partial
// write (debit without its ledger row, or vice versa) cannot be observed.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Movement describes one balance change plus its bookkeeping rows.
type Movement struct {
	ExternalUserID string
	// Signed delta: credits positive, debits negative. Zero is rejected
	// unless PointsDelta alone moves.
	Amount      decimal.Decimal
	PointsDelta int64
	Type        models.TransactionType
	Status      models.TransactionStatus // defaults to completed
	Description string
	BountyID    *string
	ProviderRef *string
	// Credits counted toward LifetimeEarned (worker payouts).
	CountsAsEarning bool

	Activity *models.Activity         // ExternalUserID filled in if empty
	Revenue  *models.PlatformRevenue  // TransactionID back-filled after insert
}

// EnsureUser returns the wallet row for an external user id, creating it
// with welcome points and a referral code on first sight. Idempotent.
func (l *LedgerService) EnsureUser(externalUserID string) (*models.User, error) {
	return ensureUserTx(l.DB, externalUserID)
}

func ensureUserTx(tx *gorm.DB, externalUserID string) (*models.User, error) {
	var user models.User
	err := tx.Where("external_user_id = ?", externalUserID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user = models.User{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		Balance:        decimal.Zero,
		LifetimeEarned: decimal.Zero,
		Points:         WelcomePoints,
		ReferralCode:   newReferralCode(),
	}
	if err := tx.Create(&user).Error; err != nil {
		// Lost a create race: another request inserted the row first.
		if fetchErr := tx.Where("external_user_id = ?", externalUserID).First(&user).Error; fetchErr == nil {
			return &user, nil
		}
		return nil, err
	}
	return &user, nil
}

func newReferralCode() string {
	return "PB-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// lockUser fetches the wallet row FOR UPDATE inside tx, creating it first if
// it does not exist yet.
func lockUser(tx *gorm.DB, externalUserID string) (*models.User, error) {
	if _, err := ensureUserTx(tx, externalUserID); err != nil {
		return nil, err
	}
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_user_id = ?", externalUserID).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to lock wallet row: %w", err)
	}
	return &user, nil
}

// Apply runs a movement inside an existing transaction. The balance check
// happens after the row lock, so concurrent debits cannot race past it.
func (l *LedgerService) Apply(tx *gorm.DB, m Movement) (*models.Transaction, error) {
	if m.Amount.IsZero() && m.PointsDelta == 0 {
		return nil, errors.New("movement has no amount")
	}
	if m.Status == "" {
		m.Status = models.TransactionStatusCompleted
	}

	user, err := lockUser(tx, m.ExternalUserID)
	if err != nil {
		return nil, err
	}

	newBalance := user.Balance.Add(m.Amount)
	if newBalance.IsNegative() {
		return nil, &InsufficientFundsError{Required: m.Amount.Neg(), Available: user.Balance}
	}
	newPoints := user.Points + m.PointsDelta
	if newPoints < 0 {
		return nil, &InsufficientPointsError{Required: -m.PointsDelta, Available: user.Points}
	}

	updates := map[string]interface{}{
		"balance": newBalance,
		"points":  newPoints,
	}
	if m.CountsAsEarning && m.Amount.IsPositive() {
		updates["lifetime_earned"] = user.LifetimeEarned.Add(m.Amount)
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	txn := &models.Transaction{
		ID:             uuid.NewString(),
		ExternalUserID: m.ExternalUserID,
		Type:           m.Type,
		Amount:         m.Amount,
		Description:    m.Description,
		Status:         m.Status,
		BountyID:       m.BountyID,
		ProviderRef:    m.ProviderRef,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if m.Activity != nil {
		if m.Activity.ExternalUserID == "" {
			m.Activity.ExternalUserID = m.ExternalUserID
		}
		if m.Activity.Metadata == "" {
			m.Activity.Metadata = "{}"
		}
		if err := tx.Create(m.Activity).Error; err != nil {
			return nil, fmt.Errorf("failed to insert activity: %w", err)
		}
	}

	if m.Revenue != nil {
		if m.Revenue.TransactionID == nil {
			m.Revenue.TransactionID = &txn.ID
		}
		if err := tx.Create(m.Revenue).Error; err != nil {
			return nil, fmt.Errorf("failed to insert revenue record: %w", err)
		}
	}

	return txn, nil
}

// FailPendingWithdrawal flips a pending withdrawal to failed and returns
// the debited amount to the user, exactly once: the pending->failed status
// flip is the idempotency guard, so a handler compensation and the
// reconciliation worker can both call this safely.
func (l *LedgerService) FailPendingWithdrawal(txnID, reason string) error {
	return l.DB.Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&txn, "id = ?", txnID).Error; err != nil {
			return err
		}
		if txn.Type != models.TransactionTypeWithdrawal {
			return fmt.Errorf("transaction %s is not a withdrawal", txnID)
		}
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
			Update("status", models.TransactionStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already reconciled.
			return nil
		}
		_, err := l.Apply(tx, Movement{
			ExternalUserID: txn.ExternalUserID,
			Amount:         txn.Amount.Neg(), // original debit is negative
			Type:           models.TransactionTypeRefund,
			Description:    fmt.Sprintf("Withdrawal refund: %s", reason),
			ProviderRef:    txn.ProviderRef,
			Activity: &models.Activity{
				ID:    uuid.NewString(),
				Kind:  "withdrawal_failed",
				Title: "Withdrawal failed",
				Body: fmt.Sprintf("Your withdrawal could not be completed (%s) — $%s returned to your balance",
					reason, txn.Amount.Neg().StringFixed(2)),
			},
		})
		return err
	})
}

// Record opens its own transaction around a single movement.
func (l *LedgerService) Record(m Movement) (*models.Transaction, error) {
	var txn *models.Transaction
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = l.Apply(tx, m)
		return err
	})
	return txn, err
}
