package storage

import (
	"context"
	"fmt"

	"github.com/Ilyushechek/secretar/internal/model"
)

// CreateNotification appends a queued text event for the (user, role) pair.
func (db *DB) CreateNotification(ctx context.Context, userID int64, role model.Role, text string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, role, message_text)
		VALUES (?, ?, ?)`,
		userID, role, text,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// PendingNotifications returns unread notifications for the pair in creation
// order. The id tiebreak keeps the order stable when several rows share one
// timestamp.
func (db *DB) PendingNotifications(ctx context.Context, userID int64, role model.Role) ([]model.Notification, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, role, message_text, is_read, created_at
		FROM notifications
		WHERE user_id = ? AND role = ? AND is_read = 0
		ORDER BY created_at, id`,
		userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Role, &n.Text, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkNotificationsRead flags every pending notification for the pair as
// read in a single statement.
func (db *DB) MarkNotificationsRead(ctx context.Context, userID int64, role model.Role) error {
	_, err := db.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1
		WHERE user_id = ? AND role = ? AND is_read = 0`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

// UnreadCount returns the number of pending notifications for the pair.
func (db *DB) UnreadCount(ctx context.Context, userID int64, role model.Role) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = ? AND role = ? AND is_read = 0`,
		userID, role,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
