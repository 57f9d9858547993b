package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is the wallet/profile row for a marketplace user.
// Identity lives in the external auth service; this row is keyed by the
// gateway's user id and created lazily on the first authenticated request.
type User struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	Balance        decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"balance"`
	LifetimeEarned decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"lifetime_earned"`
	Points         int64           `gorm:"not null;default:0" json:"points"`

	Rating      float64 `gorm:"not null;default:0" json:"rating"`
	RatingCount int64   `gorm:"not null;default:0" json:"rating_count"`

	ReferralCode  string `gorm:"uniqueIndex;not null" json:"referral_code"`
	ReferralCount int64  `gorm:"not null;default:0" json:"referral_count"`

	// Card processor's customer object id, set when the first method is saved.
	ProviderCustomerID *string `json:"provider_customer_id,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
