package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldscan/internal/logging"
)

// Pinger checks that the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Transition describes a connectivity change.
type Transition struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithCheckInterval sets how often the remote is checked.
func WithCheckInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithCheckTimeout bounds a single check.
func WithCheckTimeout(timeout time.Duration) MonitorOption {
	return func(m *Monitor) {
		if timeout > 0 {
			m.checkTimeout = timeout
		}
	}
}

// WithNetlink enables probing on kernel network interface events.
func WithNetlink(enabled bool) MonitorOption {
	return func(m *Monitor) {
		m.useNetlink = enabled
	}
}

// WithMonitorClock overrides the time source.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

const (
	defaultCheckInterval = 20 * time.Second
	defaultCheckTimeout  = 5 * time.Second
	subscriberBuffer     = 16
)

// Monitor tracks whether the remote store is reachable.
type Monitor struct {
	pinger       Pinger
	logger       *slog.Logger
	interval     time.Duration
	checkTimeout time.Duration
	useNetlink   bool
	now          func() time.Time
	trigger      chan struct{}

	mu            sync.RWMutex
	online        bool
	observed      bool
	justBack      bool
	lastOnlineAt  time.Time
	lastOfflineAt time.Time
	subs          map[int]chan Transition
	nextSub       int
}

// NewMonitor constructs a Monitor. Until the first observation it reports offline.
func NewMonitor(pinger Pinger, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		pinger:       pinger,
		logger:       logging.NewComponentLogger(logger, "network-monitor"),
		interval:     defaultCheckInterval,
		checkTimeout: defaultCheckTimeout,
		now:          time.Now,
		trigger:      make(chan struct{}, 1),
		subs:         make(map[int]chan Transition),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.useNetlink {
		nl := newNetlinkMonitor(m.logger, m.Trigger)
		if err := nl.Start(ctx); err != nil {
			return err
		}
		defer nl.Stop()
	}

	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		case <-m.trigger:
			m.Check(ctx)
		}
	}
}

// Trigger requests an immediate check from Run. Requests coalesce.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Check pings the remote once and records the outcome.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.pinger == nil {
		return m.Online()
	}
	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()
	err := m.pinger.Ping(checkCtx)
	if err != nil && m.Online() {
		logging.WarnWithContext(m.logger, "remote unreachable", "remote_offline",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "scans keep queueing locally; sync once the connection returns"),
			logging.String(logging.FieldImpact, "sync unavailable"),
		)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// SetOnline records an observation. Only changes are published.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.observed && m.online == online {
		m.mu.Unlock()
		return
	}
	at := m.now()
	wasObserved := m.observed
	m.observed = true
	m.online = online
	if online {
		m.lastOnlineAt = at
		if wasObserved {
			m.justBack = true
		}
	} else {
		m.lastOfflineAt = at
		m.justBack = false
	}
	subs := make([]chan Transition, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", logging.Bool("online", online))
	event := Transition{Online: online, At: at}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			m.logger.Debug("dropping connectivity event for slow subscriber")
		}
	}
}

// Online reports the last observed connectivity.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// JustCameBackOnline reports whether an offline to online transition happened
// since the last Acknowledge.
func (m *Monitor) JustCameBackOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.justBack
}

// Acknowledge clears the reconnect flag.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	m.justBack = false
	m.mu.Unlock()
}

// LastOnlineAt returns when the remote was last seen becoming reachable.
func (m *Monitor) LastOnlineAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOnlineAt
}

// LastOfflineAt returns when the remote was last seen becoming unreachable.
func (m *Monitor) LastOfflineAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOfflineAt
}

// Subscribe returns a channel of transitions and a function that ends the
// subscription. Slow subscribers miss events instead of blocking the monitor.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, subscriberBuffer)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
