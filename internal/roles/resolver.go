// Package roles decides which role menu a user returns to when a workflow
// ends or is cancelled.
package roles

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/model"
	"github.com/Ilyushechek/secretar/internal/session"
)

type sessions interface {
	Get(ctx context.Context, userID int64) (*session.Session, error)
}

type counters interface {
	UnreadCounts(ctx context.Context, userID int64) (client, provider int, err error)
}

// Resolver routes a user to a role menu. The session's role marker wins;
// without one it falls back to the unread-notification heuristic, and when
// that is ambiguous it refuses to guess.
type Resolver struct {
	sessions sessions
	counters counters
	logger   *zerolog.Logger
}

func NewResolver(sessions sessions, counters counters, logger *zerolog.Logger) *Resolver {
	return &Resolver{sessions: sessions, counters: counters, logger: logger}
}

// Resolve returns the role to route to. ok is false when neither the session
// nor the heuristic identifies one role; the caller must then ask the user
// explicitly rather than present the wrong role's controls.
//
// The heuristic resolves only when exactly one role has unread
// notifications. Sessions legitimately lose their role marker (a restart on
// the in-memory fallback), so this path is normal, not exceptional.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (model.Role, bool, error) {
	sess, err := r.sessions.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if role, ok := sess.Role(); ok {
		return role, true, nil
	}

	client, provider, err := r.counters.UnreadCounts(ctx, userID)
	if err != nil {
		return "", false, err
	}
	switch {
	case client > 0 && provider == 0:
		return model.RoleClient, true, nil
	case provider > 0 && client == 0:
		return model.RoleProvider, true, nil
	}

	r.logger.Debug().
		Int64("user_id", userID).
		Int("client_unread", client).
		Int("provider_unread", provider).
		Msg("role ambiguous, asking the user")
	return "", false, nil
}
