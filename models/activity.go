package models

import "time"

// Activity is a user-facing feed entry ("you earned $38.00", "bounty
// expired"). Metadata is a loose jsonb blob the clients render from.
type Activity struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string    `gorm:"index;not null" json:"external_user_id"`
	Kind           string    `gorm:"type:varchar(32);not null" json:"kind"`
	Title          string    `gorm:"not null" json:"title"`
	Body           string    `gorm:"type:text" json:"body,omitempty"`
	Metadata       string    `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`
	Read           bool      `gorm:"not null;default:false;index" json:"read"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
