package session

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/model"
)

// State is a session's workflow position tag. Each workflow declares its own
// closed set of State constants; the store treats the tag as opaque.
type State string

// StateIdle is the default for users with no saved session. Clearing a
// session returns it here.
const StateIdle State = ""

// Payload keys shared across workflows. Chat close and repeat-request accept
// write KeyClientID so the booking workflow can skip its counterpart step;
// the role router reads KeyRole. Keeping the names here keeps the workflows
// free of imports on each other.
const (
	KeyRole       = "role"
	KeyChatID     = "chat_id"
	KeyPartnerID  = "partner_id"
	KeyClientID   = "client_id"
	KeyClientName = "client_name"
)

// Session is one user's resumable workflow position plus the data its steps
// have accumulated so far.
type Session struct {
	UserID  int64             `json:"user_id"`
	State   State             `json:"state"`
	Payload map[string]string `json:"payload"`
}

// Value returns the payload entry for key, or "".
func (s *Session) Value(key string) string {
	if s.Payload == nil {
		return ""
	}
	return s.Payload[key]
}

// Int64 parses the payload entry for key as a decimal id.
func (s *Session) Int64(key string) (int64, bool) {
	v, err := strconv.ParseInt(s.Value(key), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Role returns the role recorded in the payload, which may be absent.
func (s *Session) Role() (model.Role, bool) {
	r := model.Role(s.Value(KeyRole))
	return r, r.Valid()
}

// Repository persists sessions. Get returns nil (no error) for unknown
// users; implementations must not alias the stored payload map.
type Repository interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Clear(ctx context.Context, userID int64) error
}

// Store is the session state store the workflows run on. Set replaces the
// state tag and merges the payload patch additively, so a later step still
// sees everything earlier steps saved; Clear is the only reset path.
type Store struct {
	repo   Repository
	logger *zerolog.Logger
}

// NewStore wraps a repository.
func NewStore(repo Repository, logger *zerolog.Logger) *Store {
	return &Store{repo: repo, logger: logger}
}

// Get returns the user's session, defaulting to Idle with an empty payload.
// Unknown users are not an error.
func (s *Store) Get(ctx context.Context, userID int64) (*Session, error) {
	sess, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return &Session{UserID: userID, State: StateIdle, Payload: map[string]string{}}, nil
	}
	if sess.Payload == nil {
		sess.Payload = map[string]string{}
	}
	return sess, nil
}

// Set replaces the user's state tag and merges patch into the payload.
// Events for one user are serialized by the transport, so read-merge-write
// needs no further coordination.
func (s *Store) Set(ctx context.Context, userID int64, state State, patch map[string]string) error {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	sess.State = state
	for k, v := range patch {
		sess.Payload[k] = v
	}
	if err := s.repo.Set(ctx, sess); err != nil {
		return err
	}
	s.logger.Debug().Int64("user_id", userID).Str("state", string(state)).Msg("session updated")
	return nil
}

// Clear resets the user to Idle with an empty payload.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	return s.repo.Clear(ctx, userID)
}
