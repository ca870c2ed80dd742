package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AppendOptions adjusts how Append stores a mutation.
type AppendOptions struct {
	// ID replaces the generated mutation id. Appending an id that is already
	// queued returns the stored mutation without inserting or drawing a
	// sequence number.
	ID string
	// AssignSequence draws payload.LocalSequence from the row counter inside
	// the insert transaction, so a counter reset can never fall between the
	// two.
	AssignSequence bool
}

// Append persists a new pending mutation and returns the stored record as read
// back from the database. It only returns once the insert has committed.
func (s *Store) Append(ctx context.Context, kind Kind, payload Payload) (*Mutation, error) {
	return s.AppendWith(ctx, kind, payload, AppendOptions{})
}

// AppendWith is Append with explicit id and sequence handling.
func (s *Store) AppendWith(ctx context.Context, kind Kind, payload Payload, opts AppendOptions) (*Mutation, error) {
	ctx = ensureContext(ctx)
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, validationError("append", err.Error())
	}
	if strings.TrimSpace(payload.RowID) == "" {
		return nil, validationError("append", "row id is required")
	}
	if strings.TrimSpace(payload.Timestamp) == "" {
		return nil, validationError("append", "timestamp is required")
	}

	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	created := formatSortTime(s.now())
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if opts.ID != "" {
			var existing int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM mutations WHERE id = ?`, id).Scan(&existing); err != nil {
				return err
			}
			if existing > 0 {
				return nil
			}
		}
		row := payload
		if opts.AssignSequence {
			if err := tx.QueryRowContext(ctx, nextSequenceSQL, row.RowID).Scan(&row.LocalSequence); err != nil {
				return fmt.Errorf("increment counter: %w", err)
			}
		}
		encoded, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mutations (id, kind, row_id, user_id, ts, ts_key, local_sequence, payload_json, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			string(kind),
			row.RowID,
			nullableString(row.UserID),
			row.Timestamp,
			sortKey(row.Timestamp),
			row.LocalSequence,
			string(encoded),
			string(StatusPending),
			created,
		)
		return err
	})
	if err != nil {
		return nil, storageError("append", "insert mutation", err)
	}

	stored, err := s.Get(ctx, id)
	if err != nil {
		return nil, storageError("append", "confirm insert", err)
	}
	return stored, nil
}

// Get fetches a mutation by id.
func (s *Store) Get(ctx context.Context, id string) (*Mutation, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+mutationColumns+` FROM mutations WHERE id = ?`, id)
	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, storageError("get", "read mutation", err)
	}
	return m, nil
}

// ListAll returns every queued mutation in replay order.
func (s *Store) ListAll(ctx context.Context) ([]*Mutation, error) {
	return s.list(ctx, "list all", "", nil)
}

// ListForRow returns the mutations targeting one row in replay order.
func (s *Store) ListForRow(ctx context.Context, rowID string) ([]*Mutation, error) {
	return s.list(ctx, "list for row", "WHERE row_id = ?", []any{rowID})
}

// ListByStatus returns the mutations with any of the given statuses in replay order.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Mutation, error) {
	if len(statuses) == 0 {
		return s.ListAll(ctx)
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return s.list(ctx, "list by status", "WHERE status IN ("+makePlaceholders(len(statuses))+")", args)
}

func (s *Store) list(ctx context.Context, operation, where string, args []any) ([]*Mutation, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + mutationColumns + ` FROM mutations ` + where + ` ` + replayOrder
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(operation, "query mutations", err)
	}
	defer rows.Close()

	var out []*Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, storageError(operation, "scan mutation", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(operation, "iterate mutations", err)
	}
	return out, nil
}

// Count returns the number of mutations, optionally restricted to one status.
func (s *Store) Count(ctx context.Context, status *Status) (int, error) {
	ctx = ensureContext(ctx)
	var (
		row *sql.Row
		n   int
	)
	if status == nil {
		row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM mutations`)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM mutations WHERE status = ?`, string(*status))
	}
	if err := row.Scan(&n); err != nil {
		return 0, storageError("count", "count mutations", err)
	}
	return n, nil
}

// SetStatus changes the status of one mutation. Status is the only field that
// changes after insert.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	ctx = ensureContext(ctx)
	if !status.valid() {
		return validationError("set status", fmt.Sprintf("unknown status %q", status))
	}
	var affected int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `UPDATE mutations SET status = ? WHERE id = ?`, string(status), id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return storageError("set status", "update mutation", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Remove deletes a mutation once the remote store has confirmed it.
func (s *Store) Remove(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	var affected int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return storageError("remove", "delete mutation", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ClearAll removes every mutation regardless of status.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM mutations`)
	if err != nil {
		return 0, storageError("clear", "delete mutations", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
