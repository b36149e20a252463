package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors returned by store operations. The bot layer maps them to
// user-facing copy with errors.Is.
var (
	// ErrUserNotFound: the telegram id or public code resolves to nobody.
	ErrUserNotFound = errors.New("user not found")
	// ErrChatNotFound: no non-terminal chat exists for the participant.
	ErrChatNotFound = errors.New("chat not found")
	// ErrChatConflict: the participant already has a non-terminal chat.
	ErrChatConflict = errors.New("participant already has an open chat")
	// ErrStaleChat: a guarded chat transition matched no row, because a
	// concurrent operation resolved the chat or it never belonged to the actor.
	ErrStaleChat = errors.New("chat no longer in expected state")
	// ErrRecordNotFound: no such service record.
	ErrRecordNotFound = errors.New("service record not found")
	// ErrStaleRecord: complete/cancel matched no active row.
	ErrStaleRecord = errors.New("service record no longer active")
	// ErrStaleRequest: accept/reject matched no pending repeat request.
	ErrStaleRequest = errors.New("repeat request already handled")
	// ErrDuplicateReview: the record already has a review.
	ErrDuplicateReview = errors.New("record already reviewed")
)

// DB wraps sql.DB for the bot's SQLite store.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			public_code TEXT UNIQUE NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One client+provider pairing per row. Non-terminal = pending|active;
		// at most one non-terminal row per participant, enforced by the
		// precondition read in CreateChat plus guarded transitions.
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (client_id) REFERENCES users(telegram_id),
			FOREIGN KEY (provider_id) REFERENCES users(telegram_id)
		)`,

		// Append-only; is_read is the only mutation.
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			message_text TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS service_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			service_name TEXT NOT NULL,
			cost INTEGER NOT NULL,
			address TEXT NOT NULL,
			record_date TEXT NOT NULL,
			record_time TEXT NOT NULL,
			comments TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			went_well BOOLEAN NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (provider_id) REFERENCES users(telegram_id),
			FOREIGN KEY (client_id) REFERENCES users(telegram_id)
		)`,

		`CREATE TABLE IF NOT EXISTS repeat_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (client_id) REFERENCES users(telegram_id),
			FOREIGN KEY (provider_id) REFERENCES users(telegram_id)
		)`,

		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id INTEGER UNIQUE NOT NULL,
			client_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (record_id) REFERENCES service_records(id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_chats_client_status ON chats(client_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_provider_status ON chats(provider_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(user_id, role, is_read)`,
		`CREATE INDEX IF NOT EXISTS idx_records_provider_date ON service_records(provider_id, record_date)`,
		`CREATE INDEX IF NOT EXISTS idx_records_client ON service_records(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_provider_status ON repeat_requests(provider_id, status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
