// Package sqlstore is the SQL system of record behind fieldscan-remote. It
// keeps confirmed barcode records, per-user daily counters, and all-time
// totals in an embedded SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"fieldscan/internal/remote"
	"fieldscan/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// Store implements remote.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ remote.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: conn, path: path, now: time.Now}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	s.db = nil
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func failure(operation string, err error) error {
	return services.Wrap(services.ErrRemoteFailure, "sqlstore", operation, "", err)
}

// Insert stores a confirmed record. An existing id yields remote.ErrDuplicate
// and leaves the stored record untouched.
func (s *Store) Insert(ctx context.Context, record remote.Record) error {
	if strings.TrimSpace(record.ID) == "" || strings.TrimSpace(record.RowID) == "" {
		return services.Wrap(services.ErrValidation, "sqlstore", "insert", "id and row_id are required", nil)
	}
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO barcodes (id, code, row_id, order_in_row, scanned_at, user_id, latitude, longitude, local_sequence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		record.ID,
		record.Code,
		record.RowID,
		record.OrderInRow,
		record.ScannedAt,
		nullString(record.UserID),
		nullFloat(record.Latitude),
		nullFloat(record.Longitude),
		nullSequence(record.LocalSequence),
		now,
		now,
	)
	if err != nil {
		return failure("insert", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert %s: %w", record.ID, remote.ErrDuplicate)
	}
	return nil
}

// Delete removes a record. A missing id yields remote.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM barcodes WHERE id = ?`, id)
	if err != nil {
		return failure("delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", id, remote.ErrNotFound)
	}
	return nil
}

// UpdateCode replaces the code of a record. A missing id yields remote.ErrNotFound.
func (s *Store) UpdateCode(ctx context.Context, id, code string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE barcodes SET code = ?, updated_at = ? WHERE id = ?`, code, s.timestamp(), id)
	if err != nil {
		return failure("update code", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", id, remote.ErrNotFound)
	}
	return nil
}

// RowRecords returns a row's records ordered by position.
func (s *Store) RowRecords(ctx context.Context, rowID string) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, row_id, order_in_row, scanned_at, user_id, latitude, longitude, local_sequence
		 FROM barcodes WHERE row_id = ? ORDER BY order_in_row ASC, scanned_at ASC, id ASC`,
		rowID,
	)
	if err != nil {
		return nil, failure("row records", err)
	}
	defer rows.Close()

	records := make([]remote.Record, 0)
	for rows.Next() {
		var (
			rec      remote.Record
			userID   sql.NullString
			lat, lon sql.NullFloat64
			sequence sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.RowID, &rec.OrderInRow, &rec.ScannedAt, &userID, &lat, &lon, &sequence); err != nil {
			return nil, failure("row records", err)
		}
		rec.UserID = userID.String
		if lat.Valid {
			v := lat.Float64
			rec.Latitude = &v
		}
		if lon.Valid {
			v := lon.Float64
			rec.Longitude = &v
		}
		rec.LocalSequence = sequence.Int64
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("row records", err)
	}
	return records, nil
}

// DailyCount reads a per-user-per-day counter.
func (s *Store) DailyCount(ctx context.Context, userID, date string) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT scan_count FROM daily_user_stats WHERE user_id = ? AND day = ?`, userID, date,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, failure("daily count", err)
	}
	return count, true, nil
}

// PutDailyCount upserts a per-user-per-day counter.
func (s *Store) PutDailyCount(ctx context.Context, userID, date string, count int) error {
	if count < 0 {
		count = 0
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_user_stats (user_id, day, scan_count, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, day) DO UPDATE SET scan_count = excluded.scan_count, updated_at = excluded.updated_at`,
		userID, date, count, s.timestamp(),
	)
	if err != nil {
		return failure("put daily count", err)
	}
	return nil
}

// RecomputeUserTotal sums the user's daily counters into user_totals.
func (s *Store) RecomputeUserTotal(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_totals (user_id, total, recomputed_at)
		 SELECT ?, COALESCE(SUM(scan_count), 0), ? FROM daily_user_stats WHERE user_id = ?
		 ON CONFLICT(user_id) DO UPDATE SET total = excluded.total, recomputed_at = excluded.recomputed_at
		 RETURNING total`,
		userID, s.timestamp(), userID,
	).Scan(&total)
	if err != nil {
		return 0, failure("recompute total", err)
	}
	return total, nil
}

// UserTotal returns the last recomputed all-time total for a user.
func (s *Store) UserTotal(ctx context.Context, userID string) (int, bool, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT total FROM user_totals WHERE user_id = ?`, userID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, failure("user total", err)
	}
	return total, true, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return failure("ping", err)
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullSequence(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}
