package models

import "time"

// MessageThread is a two-party conversation. One thread per user pair;
// creation dedupes on the (low, high) ordering of the two ids.
type MessageThread struct {
	ID            string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserLowID     string     `gorm:"index:idx_thread_pair,unique;not null" json:"user_low_id"`
	UserHighID    string     `gorm:"index:idx_thread_pair,unique;not null" json:"user_high_id"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	Messages []Message `gorm:"foreignKey:ThreadID" json:"messages,omitempty"`

	Timestamps
}

type Message struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ThreadID string `gorm:"index;not null" json:"thread_id"`
	SenderID string `gorm:"index;not null" json:"sender_id"` // ExternalUserID
	Body     string `gorm:"type:text;not null" json:"body"`
	Read     bool   `gorm:"not null;default:false" json:"read"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
