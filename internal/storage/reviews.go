package storage

import (
	"context"
	"fmt"
	"strings"
)

// CreateReview stores a client's 1-5 rating for a completed record. The
// UNIQUE constraint on record_id makes a second rating for the same record
// fail; that is reported as ErrDuplicateReview so a repeated button press
// reads as a stale action, not a crash.
func (db *DB) CreateReview(ctx context.Context, recordID, clientID, providerID int64, rating int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reviews (record_id, client_id, provider_id, rating)
		VALUES (?, ?, ?, ?)`,
		recordID, clientID, providerID, rating,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateReview
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// RatingSummary is a provider's aggregate review standing.
type RatingSummary struct {
	Average float64
	Count   int
}

// ProviderRating averages the provider's review ratings.
func (db *DB) ProviderRating(ctx context.Context, providerID int64) (*RatingSummary, error) {
	var s RatingSummary
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0), COUNT(*)
		FROM reviews WHERE provider_id = ?`,
		providerID,
	).Scan(&s.Average, &s.Count)
	if err != nil {
		return nil, fmt.Errorf("provider rating: %w", err)
	}
	return &s, nil
}
