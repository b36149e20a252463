package model

import (
	"strings"
	"time"
)

// Role is one of the two sides a user can act as. The same Telegram account
// may act as a client in one interaction and a provider in another.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleProvider
}

// Title returns the user-facing Russian name of the role.
func (r Role) Title() string {
	switch r {
	case RoleClient:
		return "клиент"
	case RoleProvider:
		return "предоставитель услуги"
	default:
		return string(r)
	}
}

// Opposite returns the counterpart role.
func (r Role) Opposite() Role {
	if r == RoleClient {
		return RoleProvider
	}
	return RoleClient
}

// User is a registered account identified by its Telegram id. The public
// code is the stable 6-digit handle other users type to address this user.
type User struct {
	TelegramID int64     `json:"telegram_id"`
	PublicCode string    `json:"public_code"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// FullName joins the name parts, falling back to the public code so lists
// never show an empty line.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return "ID " + u.PublicCode
	}
	return name
}
