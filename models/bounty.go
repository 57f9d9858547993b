package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BountyStatus string

const (
	BountyStatusActive    BountyStatus = "active"
	BountyStatusCompleted BountyStatus = "completed"
	BountyStatusExpired   BountyStatus = "expired"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusDeclined ApplicationStatus = "declined"
)

// Bounty is a posted micro-task. The full reward is held in escrow from the
// author's balance at posting time and leaves exactly once: as a worker
// payout on completion or as an author refund on expiry.
type Bounty struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	AuthorID    string `gorm:"index;not null" json:"author_id"` // ExternalUserID
	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"index;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"index;not null" json:"category"`
	Tags        string `json:"tags"` // comma-separated

	Reward       decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"reward"`
	DurationDays int             `gorm:"not null;default:3" json:"duration_days"`

	Status      BountyStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	ClaimedBy   *string      `gorm:"index" json:"claimed_by,omitempty"` // ExternalUserID of accepted applicant
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	Applications []BountyApplication `gorm:"foreignKey:BountyID" json:"applications,omitempty"`
	Attachments  []BountyAttachment  `gorm:"foreignKey:BountyID" json:"attachments,omitempty"`

	Timestamps
}

// BountyApplication = a user asking to work a bounty. One per user per bounty.
type BountyApplication struct {
	ID             string            `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	BountyID       string            `gorm:"index:idx_app_bounty_user,unique;not null" json:"bounty_id"`
	ExternalUserID string            `gorm:"index:idx_app_bounty_user,unique;not null" json:"external_user_id"`
	Message        string            `gorm:"type:text" json:"message,omitempty"`
	Status         ApplicationStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// BountyAttachment is a file uploaded by the author (brief, assets), stored
// on R2 with a local-disk fallback.
type BountyAttachment struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	BountyID  string    `gorm:"index;not null" json:"bounty_id"`
	FileName  string    `gorm:"not null" json:"file_name"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
