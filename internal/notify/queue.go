// Package notify is the durable notification queue. Workflows enqueue text
// for a (user, role) pair; delivery happens when the user next enters that
// role, so offline counterparts never lose a message.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ilyushechek/secretar/internal/model"
)

// maxMessageRunes is the Telegram text limit with headroom for markup.
const maxMessageRunes = 4000

type store interface {
	CreateNotification(ctx context.Context, userID int64, role model.Role, text string) error
	PendingNotifications(ctx context.Context, userID int64, role model.Role) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID int64, role model.Role) error
	UnreadCount(ctx context.Context, userID int64, role model.Role) (int, error)
}

// Queue stores and reads per-(user, role) notifications in FIFO order.
// Rows are append-only; marking read is the only mutation, and it happens
// after delivery was attempted, so a crash mid-delivery duplicates rather
// than loses.
type Queue struct {
	store  store
	logger *zerolog.Logger
}

func NewQueue(store store, logger *zerolog.Logger) *Queue {
	return &Queue{store: store, logger: logger}
}

// Enqueue appends a notification for the user in the given role. Enqueue
// never contacts the transport.
func (q *Queue) Enqueue(ctx context.Context, userID int64, role model.Role, text string) error {
	if err := q.store.CreateNotification(ctx, userID, role, text); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	q.logger.Debug().Int64("user_id", userID).Str("role", string(role)).Msg("notification enqueued")
	return nil
}

// Pending returns the user's unread notifications for the role, oldest first.
func (q *Queue) Pending(ctx context.Context, userID int64, role model.Role) ([]model.Notification, error) {
	items, err := q.store.PendingNotifications(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	return items, nil
}

// Drain marks all currently pending notifications for the role read in one
// statement. Callers invoke it only after attempting delivery of every
// pending item.
func (q *Queue) Drain(ctx context.Context, userID int64, role model.Role) error {
	if err := q.store.MarkNotificationsRead(ctx, userID, role); err != nil {
		return fmt.Errorf("drain notifications: %w", err)
	}
	return nil
}

// UnreadCounts reports how many unread notifications the user has in each
// role. The role router and the top-level menu counters read from here.
func (q *Queue) UnreadCounts(ctx context.Context, userID int64) (client, provider int, err error) {
	client, err = q.store.UnreadCount(ctx, userID, model.RoleClient)
	if err != nil {
		return 0, 0, fmt.Errorf("unread count (client): %w", err)
	}
	provider, err = q.store.UnreadCount(ctx, userID, model.RoleProvider)
	if err != nil {
		return 0, 0, fmt.Errorf("unread count (provider): %w", err)
	}
	return client, provider, nil
}

// Truncate caps text at the Telegram message limit, replacing the tail with
// an ellipsis. Counts runes, not bytes: Cyrillic text is two bytes per rune.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxMessageRunes {
		return text
	}
	return string(runes[:maxMessageRunes-3]) + "..."
}

// StripMarkup removes angle brackets so a message that failed HTML parsing
// can be resent as plain text. Dropping the brackets keeps the tag contents
// readable instead of dropping the message.
func StripMarkup(text string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(text)
}
