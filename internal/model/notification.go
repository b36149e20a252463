package model

import "time"

// Notification is one queued text event for a (user, role) pair. Rows are
// append-only; marking read is the only mutation and happens in bulk when
// the owner next enters the matching role.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
