package model

import "time"

// RequestStatus is the lifecycle state of a repeat-booking request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// RepeatRequest is a client's ask to be booked again by a provider they have
// visited before. The provider resolves it with the same guarded-update
// pattern as a chat request: whoever commits first wins, the other actor is
// told the request is already handled.
type RepeatRequest struct {
	ID         int64         `json:"id"`
	ClientID   int64         `json:"client_id"`
	ProviderID int64         `json:"provider_id"`
	Message    string        `json:"message"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Review is a client's 1-5 star rating of a completed record. One review per
// record, enforced by the store.
type Review struct {
	ID         int64     `json:"id"`
	RecordID   int64     `json:"record_id"`
	ClientID   int64     `json:"client_id"`
	ProviderID int64     `json:"provider_id"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}
