// Package chat implements the client/provider pairing protocol: a client
// addresses a provider by public code, the provider accepts or rejects the
// request, both sides relay messages until either one closes the chat.
//
// The service owns the store transitions and the domain events; delivering
// prompts and relayed messages is the transport layer's job, including the
// implicit close when a counterpart turns out to be unreachable.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/events"
	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/storage"
)

var (
	// ErrInvalidCode means the submitted provider code is not six digits.
	ErrInvalidCode = errors.New("chat: invalid public code")
	// ErrSelfChat means a user tried to open a chat with their own code.
	ErrSelfChat = errors.New("chat: cannot chat with yourself")
)

type store interface {
	GetUserByCode(ctx context.Context, code string) (*model.User, error)
	CreateChat(ctx context.Context, clientID, providerID int64) (int64, error)
	GetChat(ctx context.Context, chatID int64) (*model.Chat, error)
	GetActiveChatFor(ctx context.Context, userID int64, role model.Role) (*model.Chat, error)
	ActivateChat(ctx context.Context, chatID, providerID int64) error
	RejectChat(ctx context.Context, chatID, providerID int64) error
	CloseChat(ctx context.Context, chatID int64) (bool, error)
}

type eventPublisher interface {
	Publish(event events.Event)
}

// Service drives chats through pending, active and terminal states.
type Service struct {
	store  store
	bus    eventPublisher
	logger *zerolog.Logger
}

func NewService(store store, bus eventPublisher, logger *zerolog.Logger) *Service {
	return &Service{store: store, bus: bus, logger: logger}
}

// HasOpenChat reports whether the user already participates in a pending or
// active chat in the given role. Initiation is refused while this holds.
func (s *Service) HasOpenChat(ctx context.Context, userID int64, role model.Role) (bool, error) {
	_, err := s.store.GetActiveChatFor(ctx, userID, role)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrChatNotFound) {
		return false, nil
	}
	return false, err
}

// Initiate validates the provider code and opens a pending chat. The caller
// must then deliver the accept/reject prompt; if the provider turns out to be
// unreachable it abandons the chat with Close.
func (s *Service) Initiate(ctx context.Context, clientID int64, rawCode string) (int64, *model.User, error) {
	code := strings.TrimSpace(rawCode)
	if len(code) != 6 || !digitsOnly(code) {
		return 0, nil, ErrInvalidCode
	}

	provider, err := s.store.GetUserByCode(ctx, code)
	if err != nil {
		return 0, nil, err
	}
	if provider.TelegramID == clientID {
		return 0, nil, ErrSelfChat
	}

	chatID, err := s.store.CreateChat(ctx, clientID, provider.TelegramID)
	if err != nil {
		return 0, nil, err
	}
	s.logger.Info().
		Int64("chat_id", chatID).
		Int64("client_id", clientID).
		Int64("provider_id", provider.TelegramID).
		Msg("chat requested")
	return chatID, provider, nil
}

// Accept activates a pending chat on behalf of its provider. A stale id, a
// foreign provider or a concurrently resolved chat all surface as
// storage.ErrStaleChat with nothing changed.
func (s *Service) Accept(ctx context.Context, chatID, providerID int64) (*model.Chat, error) {
	if err := s.store.ActivateChat(ctx, chatID, providerID); err != nil {
		return nil, err
	}
	c, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load accepted chat: %w", err)
	}
	s.bus.Publish(events.Event{Type: events.ChatAccepted, ActorID: providerID, SubjectID: chatID})
	s.logger.Info().Int64("chat_id", chatID).Msg("chat accepted")
	return c, nil
}

// Reject resolves a pending chat negatively, same guard as Accept.
func (s *Service) Reject(ctx context.Context, chatID, providerID int64) (*model.Chat, error) {
	if err := s.store.RejectChat(ctx, chatID, providerID); err != nil {
		return nil, err
	}
	c, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load rejected chat: %w", err)
	}
	s.logger.Info().Int64("chat_id", chatID).Msg("chat rejected")
	return c, nil
}

// Close terminates a chat from either side or abandons an undeliverable
// request. It is idempotent: transitioned is false when the chat was already
// terminal, and the close side effects (booking offer, closed notice) must
// then be skipped by the caller.
func (s *Service) Close(ctx context.Context, chatID, actorID int64) (c *model.Chat, transitioned bool, err error) {
	transitioned, err = s.store.CloseChat(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	c, err = s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, false, fmt.Errorf("load closed chat: %w", err)
	}
	if transitioned {
		s.bus.Publish(events.Event{Type: events.ChatClosed, ActorID: actorID, SubjectID: chatID})
		s.logger.Info().Int64("chat_id", chatID).Int64("actor_id", actorID).Msg("chat closed")
	}
	return c, transitioned, nil
}

// RelayText prefixes a relayed message with the sender's role so the
// counterpart can tell relay traffic from bot prompts.
func RelayText(from model.Role, text string) string {
	return relayPrefix(from) + "\n\n" + text
}

// RelayCaption is the photo variant: the prefix alone when the photo has no
// caption, prefix plus caption otherwise.
func RelayCaption(from model.Role, caption string) string {
	if caption == "" {
		return relayPrefix(from)
	}
	return relayPrefix(from) + "\n\n" + caption
}

func relayPrefix(from model.Role) string {
	if from == model.RoleProvider {
		return "Сообщение от мастера:"
	}
	return "Сообщение от клиента:"
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
