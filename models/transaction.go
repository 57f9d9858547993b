package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeEarning       TransactionType = "earning"
	TransactionTypeSpending      TransactionType = "spending"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
	TransactionTypeEscrowHold    TransactionType = "escrow_hold"
	TransactionTypePointPurchase TransactionType = "point_purchase"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger row, one per money movement. Rows are
// never rewritten except for the status flip of pending withdrawals.
type Transaction struct {
	ID             string          `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string          `gorm:"index;not null" json:"external_user_id"`
	Type           TransactionType `gorm:"type:varchar(32);not null;index" json:"type"`
	// Signed delta applied to the balance: credits positive, debits negative.
	Amount      decimal.Decimal   `gorm:"type:numeric(15,2);not null" json:"amount"`
	Description string            `gorm:"type:text" json:"description"`
	Status      TransactionStatus `gorm:"type:varchar(16);not null;default:'completed';index" json:"status"`

	BountyID *string `gorm:"index" json:"bounty_id,omitempty"`
	// Provider-side object id (payment intent, payout) when one exists.
	ProviderRef *string `gorm:"index" json:"provider_ref,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type RevenueSource string

const (
	RevenueSourceBountyPosting    RevenueSource = "bounty_posting"
	RevenueSourceBountyCompletion RevenueSource = "bounty_completion"
	RevenueSourceDeposit          RevenueSource = "deposit"
	RevenueSourceExpiredBountyFee RevenueSource = "expired_bounty_fee"
	RevenueSourcePointPurchase    RevenueSource = "point_purchase"
)

// PlatformRevenue records the operator's cut of a movement. Append-only.
type PlatformRevenue struct {
	ID            string          `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Amount        decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	Source        RevenueSource   `gorm:"type:varchar(32);not null;index" json:"source"`
	BountyID      *string         `gorm:"index" json:"bounty_id,omitempty"`
	TransactionID *string         `gorm:"index" json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
