package model

import "time"

// FriendshipStatus is the state of an established friendship row.
type FriendshipStatus string

const (
	FriendshipActive  FriendshipStatus = "active"
	FriendshipBlocked FriendshipStatus = "blocked"
)

// Friendship is the single canonical row of a symmetric relationship.
// User1ID < User2ID always holds; use CanonicalPair before any read or write.
type Friendship struct {
	User1ID   string           `gorm:"primaryKey;size:255" json:"user1_id"`
	User2ID   string           `gorm:"primaryKey;size:255;index:idx_friendships_user2" json:"user2_id"`
	Status    FriendshipStatus `gorm:"size:16;not null;default:active;index:idx_friendships_status" json:"status"`
	CreatedAt time.Time        `gorm:"not null;autoCreateTime:false;index:idx_friendships_created" json:"created_at"`
}

func (Friendship) TableName() string { return "user_friendships" }

// Other returns the participant that is not userID.
func (f *Friendship) Other(userID string) string {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}

// CanonicalPair orders two identifiers lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// PairKey is the unordered key of {a, b}.
func PairKey(a, b string) string {
	lo, hi := CanonicalPair(a, b)
	return lo + "|" + hi
}
