package models

import "time"

// Review rates the other party of a completed bounty. One per reviewer per
// bounty; feeds the rolling rating on the reviewee's user row.
type Review struct {
	ID         string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	BountyID   string    `gorm:"index:idx_review_bounty_reviewer,unique;not null" json:"bounty_id"`
	ReviewerID string    `gorm:"index:idx_review_bounty_reviewer,unique;not null" json:"reviewer_id"`
	RevieweeID string    `gorm:"index;not null" json:"reviewee_id"`
	Stars      int       `gorm:"not null" json:"stars"` // 1..5
	Comment    string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
