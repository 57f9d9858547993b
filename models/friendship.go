package models

import "time"

type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pending"
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	FriendshipStatusDeclined FriendshipStatus = "declined"
)

// Friendship is a directed request that becomes mutual on accept. One row
// per unordered pair, stored (requester, addressee).
type Friendship struct {
	ID          string           `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	RequesterID string           `gorm:"index:idx_friend_pair,unique;not null" json:"requester_id"`
	AddresseeID string           `gorm:"index:idx_friend_pair,unique;not null" json:"addressee_id"`
	Status      FriendshipStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}
