package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/services"
	"fieldscan/internal/stats"
)

// ErrPassRunning is reported in skipped results when another pass holds the
// cross-process lock.
var ErrPassRunning = errors.New("another sync pass is running")

// Run executes one sync pass. It returns immediately with Skipped set when a
// pass is already running. onProgress may be nil.
func (m *Manager) Run(ctx context.Context, onProgress func(Progress)) Result {
	if !m.running.CompareAndSwap(false, true) {
		return Result{Skipped: true, Error: ErrPassRunning}
	}
	defer m.running.Store(false)

	if m.lock != nil {
		locked, err := m.lock.TryLock()
		if err != nil {
			return Result{Skipped: true, Error: fmt.Errorf("acquire sync lock: %w", err)}
		}
		if !locked {
			return Result{Skipped: true, Error: ErrPassRunning}
		}
		defer func() {
			if err := m.lock.Unlock(); err != nil {
				m.logger.Warn("failed to release sync lock", logging.Error(err))
			}
		}()
	}

	passID := uuid.NewString()
	ctx = services.WithPassID(ctx, passID)
	logger := logging.WithContext(ctx, m.logger)
	started := m.now()

	report := func(p Progress) {
		p.PassID = passID
		m.setProgress(p)
		if onProgress != nil {
			onProgress(p)
		}
	}

	m.begin()
	result := m.pass(ctx, passID, report)
	result.PassID = passID
	result.Duration = m.now().Sub(started)
	m.finish(result)

	if result.Success {
		logger.Info("sync pass completed",
			logging.Args(logging.PassOutcome(result.SyncedCount, 0, result.Duration)...)...,
		)
	} else {
		attrs := logging.PassOutcome(result.SyncedCount, result.FailedCount, result.Duration)
		attrs = append(attrs,
			logging.Error(result.Error),
			logging.String(logging.FieldErrorHint, services.Hint(result.Error)),
			logging.String(logging.FieldImpact, "remaining scans stay queued for the next sync"),
		)
		logging.WarnWithContext(logger, "sync pass rolled back", "sync_rolled_back", attrs...)
	}
	return result
}

func (m *Manager) pass(ctx context.Context, passID string, report func(Progress)) Result {
	logger := logging.WithContext(ctx, m.logger)

	pending, err := m.queue.ListByStatus(ctx, queue.StatusPending)
	if err != nil {
		return Result{Error: err}
	}
	total := len(pending)
	logger.Info("sync pass started", logging.Int("pending", total))

	claimed := make([]string, 0, total)
	synced := make([]queue.Mutation, 0, total)
	for i, mutation := range pending {
		if err := ctx.Err(); err != nil {
			return m.rollback(ctx, claimed, synced, total, services.Wrap(services.ErrRemoteFailure, "syncer", "run", "pass cancelled", err))
		}
		mctx := services.WithMutationID(services.WithRowID(ctx, mutation.Payload.RowID), mutation.ID)

		if err := m.queue.SetStatus(mctx, mutation.ID, queue.StatusSyncing); err != nil {
			return m.rollback(ctx, claimed, synced, total, err)
		}
		claimed = append(claimed, mutation.ID)
		report(Progress{Done: i, Total: total, MutationID: mutation.ID, Kind: mutation.Kind})

		if err := m.dispatch(mctx, mutation); err != nil {
			return m.rollback(ctx, claimed, synced, total, err)
		}
		if err := m.queue.Remove(mctx, mutation.ID); err != nil {
			return m.rollback(ctx, claimed, synced, total, err)
		}
		synced = append(synced, *mutation)
	}
	report(Progress{Done: total, Total: total})

	m.afterSuccess(ctx, synced)
	return Result{Success: true, SyncedCount: len(synced), Stats: m.lastStats(ctx, synced)}
}

// rollback demotes every mutation this pass claimed and did not remove.
// Remote changes made before the failure are not undone.
func (m *Manager) rollback(ctx context.Context, claimed []string, synced []queue.Mutation, total int, cause error) Result {
	logger := logging.WithContext(ctx, m.logger)
	// Reset even when the pass context is already cancelled.
	resetCtx := context.WithoutCancel(ctx)
	reset, err := m.queue.ResetToPending(resetCtx, claimed)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to demote syncing mutations", "rollback_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restart the agent to recover syncing mutations"),
		)
		cause = errors.Join(cause, err)
	} else {
		logger.Debug("pass rolled back", logging.Int64("reset", reset))
	}
	return Result{
		Success:     false,
		SyncedCount: len(synced),
		FailedCount: total - len(synced),
		Error:       cause,
	}
}

// afterSuccess clears per-row sequences once the queue has fully drained.
// Failures here are logged and never change the pass outcome.
func (m *Manager) afterSuccess(ctx context.Context, synced []queue.Mutation) {
	logger := logging.WithContext(ctx, m.logger)
	reset, err := m.queue.ResetSequencesIfDrained(ctx)
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "sequence reset failed", "sequence_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "row sequences keep growing until the next sync"),
		)
	case !reset:
		logger.Debug("sequence reset deferred; scans were queued during the pass")
	}
}

func (m *Manager) lastStats(ctx context.Context, synced []queue.Mutation) *stats.Report {
	if m.stats == nil || len(synced) == 0 {
		return nil
	}
	report := m.stats.Reconcile(ctx, synced)
	return &report
}
