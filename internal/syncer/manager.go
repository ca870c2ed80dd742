package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/stats"
)

// Queue is the subset of queue.Store a sync pass drives.
type Queue interface {
	ListByStatus(ctx context.Context, statuses ...queue.Status) ([]*queue.Mutation, error)
	SetStatus(ctx context.Context, id string, status queue.Status) error
	Remove(ctx context.Context, id string) error
	ResetToPending(ctx context.Context, ids []string) (int64, error)
	ResetSequencesIfDrained(ctx context.Context) (bool, error)
}

// Reconciler folds synced mutations into remote statistics.
type Reconciler interface {
	Reconcile(ctx context.Context, synced []queue.Mutation) stats.Report
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithRequestTimeout bounds every remote call of a pass. Zero disables the bound.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.requestTimeout = timeout
	}
}

// WithLock serializes passes across processes through a lock file.
func WithLock(path string) Option {
	return func(m *Manager) {
		if path == "" {
			m.lock = nil
			return
		}
		m.lock = flock.New(path)
	}
}

// WithClock overrides the time source used for pass bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager runs sync passes.
type Manager struct {
	queue          Queue
	remote         remote.Writer
	stats          Reconciler
	logger         *slog.Logger
	requestTimeout time.Duration
	lock           *flock.Flock
	now            func() time.Time

	running atomic.Bool

	mu             sync.RWMutex
	state          State
	progress       Progress
	lastResult     *Result
	lastFinishedAt time.Time
}

// New constructs a Manager. stats may be nil to skip reconciliation.
func New(q Queue, writer remote.Writer, reconciler Reconciler, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		queue:  q,
		remote: writer,
		stats:  reconciler,
		logger: logging.NewComponentLogger(logger, "syncer"),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
