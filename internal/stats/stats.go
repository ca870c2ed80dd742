// Package stats folds successfully synced mutations into the remote per-user
// daily counters and all-time totals.
//
// Reconciliation runs after a sync pass has already succeeded, so nothing in
// here can turn a successful pass into a failed one. Every failure is logged,
// tagged with services.ErrStatsFailure and collected in the Report.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/services"
)

// Reconciler updates remote counters from synced mutations.
type Reconciler struct {
	counters remote.Counters
	logger   *slog.Logger
}

// New constructs a Reconciler.
func New(counters remote.Counters, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		counters: counters,
		logger:   logging.NewComponentLogger(logger, "stats"),
	}
}

// Report summarizes one reconciliation.
type Report struct {
	DaysIncremented int
	DaysDecremented int
	UsersRecomputed int
	Skipped         int
	Errors          []error
}

// Err joins every collected failure, or returns nil.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

type dayKey struct {
	user string
	date string
}

// Reconcile groups synced ADD and DELETE mutations by user and calendar day,
// applies them to the daily counters and recomputes every touched user's
// total. UPDATE mutations do not change counts.
func (r *Reconciler) Reconcile(ctx context.Context, synced []queue.Mutation) Report {
	var report Report
	if r == nil || r.counters == nil || len(synced) == 0 {
		return report
	}

	adds := make(map[dayKey]int)
	deletes := make(map[dayKey]int)
	users := make(map[string]struct{})
	for _, m := range synced {
		user := strings.TrimSpace(m.Payload.UserID)
		if user == "" {
			if m.Kind != queue.KindUpdate {
				report.Skipped++
			}
			continue
		}
		key := dayKey{user: user, date: m.Payload.Date()}
		switch m.Kind {
		case queue.KindAdd:
			adds[key]++
			users[user] = struct{}{}
		case queue.KindDelete:
			deletes[key]++
			users[user] = struct{}{}
		}
	}

	for _, key := range sortedKeys(adds) {
		if err := r.apply(ctx, key, adds[key]); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.DaysIncremented++
	}
	for _, key := range sortedKeys(deletes) {
		if err := r.apply(ctx, key, -deletes[key]); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.DaysDecremented++
	}

	userIDs := make([]string, 0, len(users))
	for user := range users {
		userIDs = append(userIDs, user)
	}
	sort.Strings(userIDs)
	for _, user := range userIDs {
		total, err := r.counters.RecomputeUserTotal(ctx, user)
		if err != nil {
			err = r.fail("recompute total", fmt.Sprintf("user %s", user), err)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.UsersRecomputed++
		r.logger.Debug("user total recomputed",
			logging.String("user_id", user),
			logging.Int("total", total),
		)
	}

	if len(report.Errors) == 0 {
		r.logger.Info("stats reconciled",
			logging.Int("days_incremented", report.DaysIncremented),
			logging.Int("days_decremented", report.DaysDecremented),
			logging.Int("users_recomputed", report.UsersRecomputed),
		)
	}
	return report
}

// apply performs the read-modify-write of one daily counter. Decrements are
// floored at zero and never create a counter that does not exist.
func (r *Reconciler) apply(ctx context.Context, key dayKey, delta int) error {
	current, exists, err := r.counters.DailyCount(ctx, key.user, key.date)
	if err != nil {
		return r.fail("read daily count", key.String(), err)
	}
	if delta < 0 && !exists {
		return nil
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	if err := r.counters.PutDailyCount(ctx, key.user, key.date, next); err != nil {
		return r.fail("write daily count", key.String(), err)
	}
	return nil
}

func (r *Reconciler) fail(operation, subject string, err error) error {
	wrapped := services.Wrap(services.ErrStatsFailure, "stats", operation, subject, err)
	logging.WarnWithContext(r.logger, "stats update failed", "stats_failed",
		logging.String("operation", operation),
		logging.String("subject", subject),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(wrapped)),
		logging.String(logging.FieldImpact, "counters may lag until the next sync"),
	)
	return wrapped
}

func (k dayKey) String() string {
	return k.user + "/" + k.date
}

func sortedKeys(m map[dayKey]int) []dayKey {
	keys := make([]dayKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].user != keys[j].user {
			return keys[i].user < keys[j].user
		}
		return keys[i].date < keys[j].date
	})
	return keys
}
