package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ilyushechek/secretar/internal/model"
)

const recordColumns = `
	r.id, r.provider_id, r.client_id, r.service_name, r.cost, r.address,
	r.record_date, r.record_time, r.comments, r.status,
	r.duration_minutes, r.went_well, r.notes, r.created_at,
	COALESCE(TRIM(c.first_name || ' ' || c.last_name), ''),
	COALESCE(TRIM(p.first_name || ' ' || p.last_name), '')`

const recordJoins = `
	FROM service_records r
	LEFT JOIN users c ON c.telegram_id = r.client_id
	LEFT JOIN users p ON p.telegram_id = r.provider_id`

// CreateRecord persists a new booking with status active and returns its id.
func (db *DB) CreateRecord(ctx context.Context, rec *model.ServiceRecord) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO service_records
			(provider_id, client_id, service_name, cost, address, record_date, record_time, comments, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active')`,
		rec.ProviderID, rec.ClientID, rec.ServiceName, rec.Cost, rec.Address,
		rec.Date, rec.Time, rec.Comments,
	)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record id: %w", err)
	}
	return id, nil
}

// GetRecord returns one record with participant names, or ErrRecordNotFound.
func (db *DB) GetRecord(ctx context.Context, id int64) (*model.ServiceRecord, error) {
	row := db.QueryRowContext(ctx,
		"SELECT"+recordColumns+recordJoins+" WHERE r.id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ActiveRecordsForProvider lists the provider's active records oldest first,
// the order the completion and cancellation pickers number them in.
func (db *DB) ActiveRecordsForProvider(ctx context.Context, providerID int64) ([]model.ServiceRecord, error) {
	return db.queryRecords(ctx,
		"SELECT"+recordColumns+recordJoins+`
		WHERE r.provider_id = ? AND r.status = 'active'
		ORDER BY r.record_date, r.record_time, r.id`,
		providerID,
	)
}

// RecordsOnDate lists the provider's active records for one date. Shown as
// advisory context before a time is accepted; it does not block overlaps.
func (db *DB) RecordsOnDate(ctx context.Context, providerID int64, date string) ([]model.ServiceRecord, error) {
	return db.queryRecords(ctx,
		"SELECT"+recordColumns+recordJoins+`
		WHERE r.provider_id = ? AND r.record_date = ? AND r.status = 'active'
		ORDER BY r.record_time, r.id`,
		providerID, date,
	)
}

// RecordsForUser lists all of the user's records under one role, newest
// first. Used by the history view.
func (db *DB) RecordsForUser(ctx context.Context, userID int64, role model.Role) ([]model.ServiceRecord, error) {
	column := "r.client_id"
	if role == model.RoleProvider {
		column = "r.provider_id"
	}
	return db.queryRecords(ctx,
		"SELECT"+recordColumns+recordJoins+`
		WHERE `+column+` = ?
		ORDER BY r.record_date DESC, r.record_time DESC, r.id DESC`,
		userID,
	)
}

// CompleteRecord finishes an active record with the provider's report. The
// guard re-checks ownership and status inside the statement; zero rows means
// the record was already completed or cancelled.
func (db *DB) CompleteRecord(ctx context.Context, recordID, providerID int64, durationMinutes int, wentWell bool, notes string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE service_records
		SET status = 'completed', duration_minutes = ?, went_well = ?, notes = ?
		WHERE id = ? AND provider_id = ? AND status = 'active'`,
		durationMinutes, wentWell, notes, recordID, providerID,
	)
	if err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	return staleUnlessOneRow(res, ErrStaleRecord)
}

// CancelRecord cancels an active record, same guard as CompleteRecord.
func (db *DB) CancelRecord(ctx context.Context, recordID, providerID int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE service_records SET status = 'cancelled'
		WHERE id = ? AND provider_id = ? AND status = 'active'`,
		recordID, providerID,
	)
	if err != nil {
		return fmt.Errorf("cancel record: %w", err)
	}
	return staleUnlessOneRow(res, ErrStaleRecord)
}

// RecordYears returns the distinct years that hold records for the user
// under the role, ascending. Dates are stored as YYYY-MM-DD text, so the
// calendar drill-down can slice them lexically.
func (db *DB) RecordYears(ctx context.Context, userID int64, role model.Role) ([]int, error) {
	return db.queryInts(ctx, `
		SELECT DISTINCT CAST(substr(record_date, 1, 4) AS INTEGER) AS y
		FROM service_records WHERE `+roleColumn(role)+` = ?
		ORDER BY y`,
		userID,
	)
}

// RecordMonths returns the months with records in one year, ascending.
func (db *DB) RecordMonths(ctx context.Context, userID int64, role model.Role, year int) ([]int, error) {
	return db.queryInts(ctx, `
		SELECT DISTINCT CAST(substr(record_date, 6, 2) AS INTEGER) AS m
		FROM service_records
		WHERE `+roleColumn(role)+` = ? AND substr(record_date, 1, 4) = ?
		ORDER BY m`,
		userID, fmt.Sprintf("%04d", year),
	)
}

// DayCount is one day of a month and how many records fall on it. The
// calendar grid labels its cells with these counts.
type DayCount struct {
	Day     int
	Records int
}

// RecordDays returns the days with records in one month with per-day counts,
// ascending.
func (db *DB) RecordDays(ctx context.Context, userID int64, role model.Role, year, month int) ([]DayCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT CAST(substr(record_date, 9, 2) AS INTEGER) AS d, COUNT(*)
		FROM service_records
		WHERE `+roleColumn(role)+` = ? AND substr(record_date, 1, 7) = ?
		GROUP BY d ORDER BY d`,
		userID, fmt.Sprintf("%04d-%02d", year, month),
	)
	if err != nil {
		return nil, fmt.Errorf("record days: %w", err)
	}
	defer rows.Close()

	var list []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Records); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		list = append(list, dc)
	}
	return list, rows.Err()
}

// RecordsByDay returns the user's records on one date under the role.
func (db *DB) RecordsByDay(ctx context.Context, userID int64, role model.Role, date string) ([]model.ServiceRecord, error) {
	return db.queryRecords(ctx,
		"SELECT"+recordColumns+recordJoins+`
		WHERE `+roleColumn(role)+` = ? AND r.record_date = ?
		ORDER BY r.record_time, r.id`,
		userID, date,
	)
}

// PeriodStats aggregates a provider's records from a start date onward.
type PeriodStats struct {
	Active    int
	Completed int
	Cancelled int
	Income    int64 // sum of completed costs
}

// ProviderStats counts the provider's records by status and sums completed
// income for record dates on or after from (YYYY-MM-DD).
func (db *DB) ProviderStats(ctx context.Context, providerID int64, from string) (*PeriodStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(cost), 0)
		FROM service_records
		WHERE provider_id = ? AND record_date >= ?
		GROUP BY status`,
		providerID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("provider stats: %w", err)
	}
	defer rows.Close()

	var stats PeriodStats
	for rows.Next() {
		var status model.RecordStatus
		var count int
		var sum int64
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case model.RecordActive:
			stats.Active = count
		case model.RecordCompleted:
			stats.Completed = count
			stats.Income = sum
		case model.RecordCancelled:
			stats.Cancelled = count
		}
	}
	return &stats, rows.Err()
}

// RecordsForProviderSince lists the provider's records with dates on or
// after from, for the statistics report.
func (db *DB) RecordsForProviderSince(ctx context.Context, providerID int64, from string) ([]model.ServiceRecord, error) {
	return db.queryRecords(ctx,
		"SELECT"+recordColumns+recordJoins+`
		WHERE r.provider_id = ? AND r.record_date >= ?
		ORDER BY r.record_date, r.record_time, r.id`,
		providerID, from,
	)
}

// HistoryProvider is one provider a client has records with.
type HistoryProvider struct {
	User    model.User
	Records int
}

// ProvidersFromHistory returns the distinct providers from the client's
// booking history with per-provider record counts, most visited first. The
// repeat-request picker numbers this list.
func (db *DB) ProvidersFromHistory(ctx context.Context, clientID int64) ([]HistoryProvider, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT u.telegram_id, u.public_code, u.first_name, u.last_name, u.created_at, COUNT(r.id) AS total
		FROM service_records r
		JOIN users u ON u.telegram_id = r.provider_id
		WHERE r.client_id = ?
		GROUP BY u.telegram_id
		ORDER BY total DESC, u.telegram_id`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("providers from history: %w", err)
	}
	defer rows.Close()

	var list []HistoryProvider
	for rows.Next() {
		var hp HistoryProvider
		if err := rows.Scan(&hp.User.TelegramID, &hp.User.PublicCode, &hp.User.FirstName,
			&hp.User.LastName, &hp.User.CreatedAt, &hp.Records); err != nil {
			return nil, fmt.Errorf("scan history provider: %w", err)
		}
		list = append(list, hp)
	}
	return list, rows.Err()
}

func roleColumn(role model.Role) string {
	if role == model.RoleProvider {
		return "provider_id"
	}
	return "client_id"
}

func staleUnlessOneRow(res sql.Result, stale error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return stale
	}
	return nil
}

func (db *DB) queryRecords(ctx context.Context, query string, args ...interface{}) ([]model.ServiceRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var list []model.ServiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (db *DB) queryInts(ctx context.Context, query string, args ...interface{}) ([]int, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ints: %w", err)
	}
	defer rows.Close()

	var list []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan int: %w", err)
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.ServiceRecord, error) {
	var r model.ServiceRecord
	err := row.Scan(
		&r.ID, &r.ProviderID, &r.ClientID, &r.ServiceName, &r.Cost, &r.Address,
		&r.Date, &r.Time, &r.Comments, &r.Status,
		&r.DurationMinutes, &r.WentWell, &r.Notes, &r.CreatedAt,
		&r.ClientName, &r.ProviderName,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
