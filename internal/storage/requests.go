package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ilyushechek/secretar/internal/model"
)

// CreateRepeatRequest files a pending repeat-booking request from a client
// to a provider and returns its id.
func (db *DB) CreateRepeatRequest(ctx context.Context, clientID, providerID int64, message string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO repeat_requests (client_id, provider_id, message, status)
		VALUES (?, ?, ?, 'pending')`,
		clientID, providerID, message,
	)
	if err != nil {
		return 0, fmt.Errorf("insert repeat request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("repeat request id: %w", err)
	}
	return id, nil
}

// GetRepeatRequest returns one request, or ErrStaleRequest when it does not
// exist.
func (db *DB) GetRepeatRequest(ctx context.Context, id int64) (*model.RepeatRequest, error) {
	var r model.RepeatRequest
	err := db.QueryRowContext(ctx, `
		SELECT id, client_id, provider_id, message, status, created_at
		FROM repeat_requests WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.ClientID, &r.ProviderID, &r.Message, &r.Status, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrStaleRequest
	}
	if err != nil {
		return nil, fmt.Errorf("get repeat request: %w", err)
	}
	return &r, nil
}

// PendingRequestsForProvider lists the provider's unanswered requests oldest
// first, the order the picker numbers them in.
func (db *DB) PendingRequestsForProvider(ctx context.Context, providerID int64) ([]model.RepeatRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, client_id, provider_id, message, status, created_at
		FROM repeat_requests
		WHERE provider_id = ? AND status = 'pending'
		ORDER BY created_at, id`,
		providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query repeat requests: %w", err)
	}
	defer rows.Close()

	var list []model.RepeatRequest
	for rows.Next() {
		var r model.RepeatRequest
		if err := rows.Scan(&r.ID, &r.ClientID, &r.ProviderID, &r.Message, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan repeat request: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// AcceptRepeatRequest resolves a pending request in the provider's favor.
// Guarded exactly like a chat transition: zero rows affected means a
// concurrent resolve won, reported as ErrStaleRequest.
func (db *DB) AcceptRepeatRequest(ctx context.Context, requestID, providerID int64) error {
	return db.resolveRequest(ctx, requestID, providerID, model.RequestAccepted)
}

// RejectRepeatRequest declines a pending request, same guard as accept.
func (db *DB) RejectRepeatRequest(ctx context.Context, requestID, providerID int64) error {
	return db.resolveRequest(ctx, requestID, providerID, model.RequestRejected)
}

func (db *DB) resolveRequest(ctx context.Context, requestID, providerID int64, status model.RequestStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE repeat_requests SET status = ?
		WHERE id = ? AND provider_id = ? AND status = 'pending'`,
		status, requestID, providerID,
	)
	if err != nil {
		return fmt.Errorf("resolve repeat request: %w", err)
	}
	return staleUnlessOneRow(res, ErrStaleRequest)
}
