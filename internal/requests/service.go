// Package requests implements repeat-booking requests: a client picks a
// provider from their booking history and sends a short message, the provider
// accepts or rejects it and may continue straight into a prefilled booking.
package requests

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/events"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/notify"
	"github.com/Ilyushechek/secretar/internal/storage"
)

type store interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	ProvidersFromHistory(ctx context.Context, clientID int64) ([]storage.HistoryProvider, error)
	CreateRepeatRequest(ctx context.Context, clientID, providerID int64, message string) (int64, error)
	GetRepeatRequest(ctx context.Context, id int64) (*model.RepeatRequest, error)
	PendingRequestsForProvider(ctx context.Context, providerID int64) ([]model.RepeatRequest, error)
	AcceptRepeatRequest(ctx context.Context, requestID, providerID int64) error
	RejectRepeatRequest(ctx context.Context, requestID, providerID int64) error
}

type queue interface {
	Enqueue(ctx context.Context, userID int64, role model.Role, text string) error
}

type eventPublisher interface {
	Publish(event events.Event)
}

// Service files and resolves repeat requests.
type Service struct {
	store  store
	queue  queue
	bus    eventPublisher
	logger *zerolog.Logger
}

func NewService(store store, queue queue, bus eventPublisher, logger *zerolog.Logger) *Service {
	return &Service{store: store, queue: queue, bus: bus, logger: logger}
}

// History lists the providers the client can request again, most visited
// first. An empty list means the client has no booking history yet.
func (s *Service) History(ctx context.Context, clientID int64) ([]storage.HistoryProvider, error) {
	return s.store.ProvidersFromHistory(ctx, clientID)
}

// Create files a pending request and queues a notification for the provider.
// The provider may be offline, so the text waits in the queue until their
// next role entry; queue trouble after the insert is logged, not returned.
func (s *Service) Create(ctx context.Context, clientID, providerID int64, message string) (int64, error) {
	client, err := s.store.GetUser(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("load client: %w", err)
	}

	id, err := s.store.CreateRepeatRequest(ctx, clientID, providerID, message)
	if err != nil {
		return 0, err
	}

	text := notify.Truncate(fmt.Sprintf(
		"📥 Новый запрос на повторную запись от %s (ID: %s):\n\n%s",
		client.FullName(), client.PublicCode, message,
	))
	if err := s.queue.Enqueue(ctx, providerID, model.RoleProvider, text); err != nil {
		s.logger.Error().Err(err).Int64("request_id", id).Msg("enqueue provider notification")
	}

	s.logger.Info().
		Int64("request_id", id).
		Int64("client_id", clientID).
		Int64("provider_id", providerID).
		Msg("repeat request filed")
	return id, nil
}

// PendingFor lists the provider's unanswered requests, oldest first, the
// order the picker numbers them in.
func (s *Service) PendingFor(ctx context.Context, providerID int64) ([]model.RepeatRequest, error) {
	return s.store.PendingRequestsForProvider(ctx, providerID)
}

// Accept resolves a pending request in the client's favor, queues the client
// a notification and returns the request so the caller can offer a prefilled
// booking. A foreign provider or a concurrently resolved request surfaces as
// storage.ErrStaleRequest with nothing changed.
func (s *Service) Accept(ctx context.Context, requestID, providerID int64) (*model.RepeatRequest, error) {
	if err := s.store.AcceptRepeatRequest(ctx, requestID, providerID); err != nil {
		return nil, err
	}
	req, err := s.store.GetRepeatRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load accepted request: %w", err)
	}

	text := fmt.Sprintf("✅ %s принял ваш запрос на повторную запись!", s.providerName(ctx, providerID))
	if err := s.queue.Enqueue(ctx, req.ClientID, model.RoleClient, text); err != nil {
		s.logger.Error().Err(err).Int64("request_id", requestID).Msg("enqueue client notification")
	}

	s.bus.Publish(events.Event{Type: events.RequestAccepted, ActorID: providerID, SubjectID: requestID})
	s.logger.Info().Int64("request_id", requestID).Int64("provider_id", providerID).Msg("repeat request accepted")
	return req, nil
}

// Reject declines a pending request, same guard and notification path as
// Accept.
func (s *Service) Reject(ctx context.Context, requestID, providerID int64) (*model.RepeatRequest, error) {
	if err := s.store.RejectRepeatRequest(ctx, requestID, providerID); err != nil {
		return nil, err
	}
	req, err := s.store.GetRepeatRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load rejected request: %w", err)
	}

	text := fmt.Sprintf("❌ %s отклонил ваш запрос на повторную запись.", s.providerName(ctx, providerID))
	if err := s.queue.Enqueue(ctx, req.ClientID, model.RoleClient, text); err != nil {
		s.logger.Error().Err(err).Int64("request_id", requestID).Msg("enqueue client notification")
	}

	s.logger.Info().Int64("request_id", requestID).Int64("provider_id", providerID).Msg("repeat request rejected")
	return req, nil
}

// providerName renders the provider for client-facing notification text. The
// bare role noun stands in when the profile cannot be loaded; the
// notification still has to go out.
func (s *Service) providerName(ctx context.Context, providerID int64) string {
	provider, err := s.store.GetUser(ctx, providerID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Msg("load provider for notification")
		return "Мастер"
	}
	return "Мастер " + provider.FullName()
}
