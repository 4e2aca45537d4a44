package model

import "time"

// RequestStatus is the lifecycle state of a FriendRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
	RequestExpired   RequestStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool { return s != RequestPending }

// FriendRequest is a directional, time-bounded solicitation.
//
// PendingKey holds PairKey(sender, target) while the request is pending and
// NULL afterwards. Its unique index allows at most one pending request per
// unordered pair on engines without partial indexes.
type FriendRequest struct {
	RequestID  string        `gorm:"primaryKey;size:36" json:"request_id"`
	SenderID   string        `gorm:"size:255;not null;index:idx_friend_requests_sender,priority:1" json:"sender_id"`
	TargetID   string        `gorm:"size:255;not null;index:idx_friend_requests_target,priority:1" json:"target_id"`
	Message    string        `gorm:"type:text" json:"message,omitempty"`
	Status     RequestStatus `gorm:"size:16;not null;default:pending;index:idx_friend_requests_status_expiry,priority:1" json:"status"`
	PendingKey *string       `gorm:"size:511;uniqueIndex:uq_friend_requests_pending" json:"-"`
	CreatedAt  time.Time     `gorm:"not null;autoCreateTime:false;index:idx_friend_requests_sender,priority:2;index:idx_friend_requests_target,priority:2" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
	ExpiresAt  time.Time     `gorm:"not null;index:idx_friend_requests_status_expiry,priority:2" json:"expires_at"`
}

func (FriendRequest) TableName() string { return "friend_requests" }

// ExpiredAt reports whether the request is past its expiry at now.
func (r *FriendRequest) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
