package queue

import (
	"context"
	"database/sql"
)

// ResetToPending demotes the given mutations from syncing back to pending.
// Mutations that already left the syncing state are untouched.
func (s *Store) ResetToPending(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{string(StatusPending), string(StatusSyncing)}, stringArgs(ids)...)
	var affected int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx,
			`UPDATE mutations SET status = ? WHERE status = ? AND id IN (`+makePlaceholders(len(ids))+`)`,
			args...,
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, storageError("reset to pending", "update mutations", err)
	}
	return affected, nil
}

// ResetSyncing demotes every syncing mutation to pending. A syncing mutation
// outside an active pass can only be left behind by a crash.
func (s *Store) ResetSyncing(ctx context.Context) (int64, error) {
	return s.transitionAll(ctx, "reset syncing", StatusSyncing, StatusPending)
}

// RetryFailed moves failed mutations back to pending so the next pass replays them.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	return s.transitionAll(ctx, "retry failed", StatusFailed, StatusPending)
}

// MarkFailed parks a pending mutation so sync passes skip it until retried.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == StatusSyncing {
		return validationError("mark failed", "mutation is being synced")
	}
	return s.SetStatus(ctx, id, StatusFailed)
}

func (s *Store) transitionAll(ctx context.Context, operation string, from, to Status) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, `UPDATE mutations SET status = ? WHERE status = ?`, string(to), string(from))
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, storageError(operation, "update mutations", err)
	}
	return affected, nil
}
