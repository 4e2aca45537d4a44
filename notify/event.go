// Package notify delivers relationship events off the request path.
//
// Local recipients get user notifications through PubSubSink, remote domains
// get federation events through NATSFederation. Delivery is fire-and-forget:
// the Dispatcher queues, never blocks the caller, and never retries.
package notify

import (
	"encoding/json"
	"time"
)

// EventType names a relationship event.
type EventType string

const (
	RequestReceived  EventType = "request_received"
	RequestAccepted  EventType = "request_accepted"
	RequestRejected  EventType = "request_rejected"
	RequestCancelled EventType = "request_cancelled"
	FriendRemoved    EventType = "friend_removed"
	UserBlocked      EventType = "user_blocked"
)

// Event is delivered to Recipient about an action by Actor.
type Event struct {
	Type      EventType `json:"type"`
	Recipient string    `json:"recipient"`
	Actor     string    `json:"actor"`
	RequestID string    `json:"request_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Encode returns the wire form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// UserChannel is the pub/sub channel carrying userID's notifications.
func UserChannel(userID string) string {
	return "friends:user:" + userID
}

// Decode parses the wire form produced by Encode.
func Decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
