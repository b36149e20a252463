package model

import "time"

// ChatStatus is the lifecycle state of a chat pairing.
type ChatStatus string

const (
	ChatPending  ChatStatus = "pending"
	ChatActive   ChatStatus = "active"
	ChatClosed   ChatStatus = "closed"
	ChatRejected ChatStatus = "rejected"
)

// Terminal reports whether the chat can never carry traffic again.
// Rejected behaves exactly like closed; it exists only so the client can be
// told the request was declined rather than ended.
func (s ChatStatus) Terminal() bool {
	return s == ChatClosed || s == ChatRejected
}

// Chat pairs exactly one client with one provider. A participant has at most
// one non-terminal chat at a time; that is checked by a precondition read
// before insert and re-checked by guarded updates on every transition.
type Chat struct {
	ID         int64      `json:"id"`
	ClientID   int64      `json:"client_id"`
	ProviderID int64      `json:"provider_id"`
	Status     ChatStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Partner returns the other participant's id, or 0 when userID is not a
// participant of this chat.
func (c *Chat) Partner(userID int64) int64 {
	switch userID {
	case c.ClientID:
		return c.ProviderID
	case c.ProviderID:
		return c.ClientID
	default:
		return 0
	}
}
