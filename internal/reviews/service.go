// Package reviews stores client ratings for completed bookings. One rating
// per record; the prompt arrives right after completion and rating is a
// single button press.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/storage"
)

var (
	// ErrBadRating means the submitted rating is outside 1-5. Callback data
	// is client-controlled, so the range is checked here and not trusted.
	ErrBadRating = errors.New("reviews: rating out of range")
	// ErrNotReviewable means the record is not this client's completed
	// booking.
	ErrNotReviewable = errors.New("reviews: record not reviewable")
)

type store interface {
	GetRecord(ctx context.Context, id int64) (*model.ServiceRecord, error)
	CreateReview(ctx context.Context, recordID, clientID, providerID int64, rating int) error
	ProviderRating(ctx context.Context, providerID int64) (*storage.RatingSummary, error)
}

type queue interface {
	Enqueue(ctx context.Context, userID int64, role model.Role, text string) error
}

// Service validates and stores ratings.
type Service struct {
	store  store
	queue  queue
	logger *zerolog.Logger
}

func NewService(store store, queue queue, logger *zerolog.Logger) *Service {
	return &Service{store: store, queue: queue, logger: logger}
}

// Rate stores the client's rating for their completed record and queues the
// provider a notification. A second rating for the same record surfaces as
// storage.ErrDuplicateReview with nothing changed. The returned summary is
// the provider's updated standing and is best effort: nil when the aggregate
// query fails after the rating is already stored.
func (s *Service) Rate(ctx context.Context, recordID, clientID int64, rating int) (*storage.RatingSummary, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrBadRating
	}

	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.ClientID != clientID || rec.Status != model.RecordCompleted {
		return nil, ErrNotReviewable
	}

	if err := s.store.CreateReview(ctx, recordID, clientID, rec.ProviderID, rating); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("⭐ Новый отзыв!\nУслуга: %s\nОценка: %s", rec.ServiceName, Stars(rating))
	if err := s.queue.Enqueue(ctx, rec.ProviderID, model.RoleProvider, text); err != nil {
		s.logger.Error().Err(err).Int64("record_id", recordID).Msg("enqueue provider notification")
	}

	s.logger.Info().
		Int64("record_id", recordID).
		Int64("provider_id", rec.ProviderID).
		Int("rating", rating).
		Msg("review stored")

	summary, err := s.store.ProviderRating(ctx, rec.ProviderID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("provider_id", rec.ProviderID).Msg("provider rating summary")
		return nil, nil
	}
	return summary, nil
}

// Stars renders a rating as that many star glyphs.
func Stars(rating int) string {
	return strings.Repeat("⭐", rating)
}
