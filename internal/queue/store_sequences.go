package queue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const nextSequenceSQL = `INSERT INTO row_sequences (row_id, value) VALUES (?, 1)
	ON CONFLICT(row_id) DO UPDATE SET value = value + 1
	RETURNING value`

// NextSequence atomically increments and returns the per-row counter. The
// increment is a single upsert statement inside a write transaction, so
// concurrent callers for the same row never receive the same value.
func (s *Store) NextSequence(ctx context.Context, rowID string) (int64, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(rowID) == "" {
		return 0, validationError("next sequence", "row id is required")
	}
	var value int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, nextSequenceSQL, rowID).Scan(&value)
	})
	if err != nil {
		return 0, storageError("next sequence", "increment counter", err)
	}
	return value, nil
}

// Sequence returns the last value handed out for a row, or zero when the row
// has no counter.
func (s *Store) Sequence(ctx context.Context, rowID string) (int64, error) {
	ctx = ensureContext(ctx)
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM row_sequences WHERE row_id = ?`, rowID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageError("sequence", "read counter", err)
	}
	return value, nil
}

// ResetSequences clears every per-row counter.
func (s *Store) ResetSequences(ctx context.Context) error {
	ctx = ensureContext(ctx)
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `DELETE FROM row_sequences`)
		return execErr
	})
	if err != nil {
		return storageError("reset sequences", "delete counters", err)
	}
	return nil
}

// ResetSequencesIfDrained clears every per-row counter when, and only when,
// the queue holds no mutations. The check and the reset share one write
// transaction, so a concurrent append either lands before and blocks the
// reset or lands after and starts from 1.
func (s *Store) ResetSequencesIfDrained(ctx context.Context) (bool, error) {
	ctx = ensureContext(ctx)
	reset := false
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		reset = false
		var remaining int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM mutations`).Scan(&remaining); err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM row_sequences`); err != nil {
			return err
		}
		reset = true
		return nil
	})
	if err != nil {
		return false, storageError("reset sequences", "reset drained counters", err)
	}
	return reset, nil
}
