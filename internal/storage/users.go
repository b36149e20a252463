package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"

	"github.com/Ilyushechek/secretar/internal/model"
)

const publicCodeAttempts = 10

// CreateUser registers a new user and assigns a random unique 6-digit public
// code. Calling it again for an existing telegram id is an error; use
// GetUser first.
func (db *DB) CreateUser(ctx context.Context, telegramID int64, firstName, lastName string) (*model.User, error) {
	for attempt := 0; attempt < publicCodeAttempts; attempt++ {
		code := fmt.Sprintf("%06d", rand.Intn(900000)+100000)

		var exists int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM users WHERE public_code = ?", code,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check public code: %w", err)
		}
		if exists > 0 {
			continue
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO users (telegram_id, public_code, first_name, last_name)
			VALUES (?, ?, ?, ?)`,
			telegramID, code, firstName, lastName,
		)
		if err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
		return db.GetUser(ctx, telegramID)
	}
	return nil, fmt.Errorf("generate public code: no free code after %d attempts", publicCodeAttempts)
}

// GetUser returns the user by telegram id, or ErrUserNotFound.
func (db *DB) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx, `
		SELECT telegram_id, public_code, first_name, last_name, created_at
		FROM users WHERE telegram_id = ?`,
		telegramID,
	).Scan(&u.TelegramID, &u.PublicCode, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByCode resolves a public code to a user, or ErrUserNotFound.
func (db *DB) GetUserByCode(ctx context.Context, code string) (*model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx, `
		SELECT telegram_id, public_code, first_name, last_name, created_at
		FROM users WHERE public_code = ?`,
		code,
	).Scan(&u.TelegramID, &u.PublicCode, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by code: %w", err)
	}
	return &u, nil
}

// UserExists reports whether the telegram id is registered.
func (db *DB) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE telegram_id = ?", telegramID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return count > 0, nil
}
