package models

import "time"

// Referral tracks who recruited whom and the one-time points bonus.
// ReferredID is unique: a user can only ever be referred once.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`       // ExternalUserID
	ReferredID string `gorm:"uniqueIndex;not null" json:"referred_id"` // ExternalUserID

	ReferralCodeUsed string     `gorm:"not null" json:"referral_code_used"`
	PointsAwarded    int64      `gorm:"default:0" json:"points_awarded"`
	BonusAwarded     bool       `gorm:"default:false" json:"bonus_awarded"`
	AwardedAt        *time.Time `json:"awarded_at,omitempty"`

	Timestamps
}
