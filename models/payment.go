package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentMethod mirrors the card processor's saved-card object. The PAN
// never touches this service; we keep only the provider id and display data.
type PaymentMethod struct {
	ID               string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID   string `gorm:"index;not null" json:"external_user_id"`
	ProviderMethodID string `gorm:"uniqueIndex;not null" json:"provider_method_id"`
	Brand            string `gorm:"type:varchar(32)" json:"brand"`
	Last4            string `gorm:"type:varchar(4)" json:"last4"`
	ExpMonth         int    `json:"exp_month"`
	ExpYear          int    `json:"exp_year"`
	IsDefault        bool   `gorm:"not null;default:false" json:"is_default"`

	Timestamps
}

// Payment mirrors a provider payment intent we created (deposits and point
// purchases). Confirmation flips Status exactly once.
type Payment struct {
	ID               string          `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID   string          `gorm:"index;not null" json:"external_user_id"`
	ProviderIntentID string          `gorm:"uniqueIndex;not null" json:"provider_intent_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	Purpose          string          `gorm:"type:varchar(32);not null" json:"purpose"` // deposit | point_purchase
	// For point purchases: the package bought.
	PointPackageID *string       `json:"point_package_id,omitempty"`
	Status         PaymentStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt      time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}
