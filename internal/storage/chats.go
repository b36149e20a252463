package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ilyushechek/secretar/internal/model"
)

// CreateChat opens a pending pairing between a client and a provider after
// verifying neither side already has a non-terminal chat. The conflict check
// plus the guarded transitions below are the only concurrency control the
// pairing protocol needs: units of work for one user are serialized by the
// transport, and cross-user races resolve at the guarded UPDATE.
func (db *DB) CreateChat(ctx context.Context, clientID, providerID int64) (int64, error) {
	for _, check := range []struct {
		id   int64
		role model.Role
	}{
		{clientID, model.RoleClient},
		{providerID, model.RoleProvider},
	} {
		if _, err := db.GetActiveChatFor(ctx, check.id, check.role); err == nil {
			return 0, ErrChatConflict
		} else if err != ErrChatNotFound {
			return 0, err
		}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO chats (client_id, provider_id, status)
		VALUES (?, ?, 'pending')`,
		clientID, providerID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("chat id: %w", err)
	}
	return id, nil
}

// GetChat returns a chat by id, or ErrChatNotFound.
func (db *DB) GetChat(ctx context.Context, chatID int64) (*model.Chat, error) {
	return db.scanChat(db.QueryRowContext(ctx, `
		SELECT id, client_id, provider_id, status, created_at, updated_at
		FROM chats WHERE id = ?`,
		chatID,
	))
}

// GetActiveChatFor returns the participant's single non-terminal chat, or
// ErrChatNotFound when there is none.
func (db *DB) GetActiveChatFor(ctx context.Context, userID int64, role model.Role) (*model.Chat, error) {
	column := "client_id"
	if role == model.RoleProvider {
		column = "provider_id"
	}
	return db.scanChat(db.QueryRowContext(ctx, `
		SELECT id, client_id, provider_id, status, created_at, updated_at
		FROM chats WHERE `+column+` = ? AND status IN ('pending', 'active')
		ORDER BY id DESC LIMIT 1`,
		userID,
	))
}

// ActivateChat moves a pending chat to active on behalf of its provider.
// The WHERE clause re-reads status and ownership inside the mutation; zero
// rows affected means the chat was resolved concurrently or never addressed
// this provider, reported as ErrStaleChat with nothing changed.
func (db *DB) ActivateChat(ctx context.Context, chatID, providerID int64) error {
	return db.guardedChatUpdate(ctx, `
		UPDATE chats SET status = 'active', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND provider_id = ? AND status = 'pending'`,
		chatID, providerID,
	)
}

// RejectChat moves a pending chat to rejected, same guard as ActivateChat.
func (db *DB) RejectChat(ctx context.Context, chatID, providerID int64) error {
	return db.guardedChatUpdate(ctx, `
		UPDATE chats SET status = 'rejected', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND provider_id = ? AND status = 'pending'`,
		chatID, providerID,
	)
}

// CloseChat terminates a chat from any non-terminal status. It is idempotent:
// the returned flag is false when the chat was already terminal, which the
// caller uses to avoid repeating close side effects.
func (db *DB) CloseChat(ctx context.Context, chatID int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE chats SET status = 'closed', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'active')`,
		chatID,
	)
	if err != nil {
		return false, fmt.Errorf("close chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close chat rows: %w", err)
	}
	return n == 1, nil
}

func (db *DB) guardedChatUpdate(ctx context.Context, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update chat rows: %w", err)
	}
	if n == 0 {
		return ErrStaleChat
	}
	return nil
}

func (db *DB) scanChat(row *sql.Row) (*model.Chat, error) {
	var c model.Chat
	err := row.Scan(&c.ID, &c.ClientID, &c.ProviderID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return &c, nil
}
