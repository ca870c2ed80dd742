package network

import (
	"context"
	"log/slog"
	"sync"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/syncer"
)

// Syncer runs sync passes.
type Syncer interface {
	Run(ctx context.Context, onProgress func(syncer.Progress)) syncer.Result
	Running() bool
	Snapshot() syncer.SyncState
}

// Counter counts queued mutations.
type Counter interface {
	Count(ctx context.Context, status *queue.Status) (int, error)
}

// EventType names the kind of an orchestrator event.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventResult       EventType = "result"
	EventConnectivity EventType = "connectivity"
)

// Event is delivered to orchestrator subscribers.
type Event struct {
	Type     EventType        `json:"type"`
	Progress *syncer.Progress `json:"progress,omitempty"`
	Result   *syncer.Result   `json:"result,omitempty"`
	State    syncer.SyncState `json:"state"`
	Online   bool             `json:"online"`
	Error    string           `json:"error,omitempty"`
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithAutoSync starts a pass when the remote becomes reachable again and
// mutations are pending.
func WithAutoSync(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.autoSync = enabled
	}
}

// Orchestrator combines connectivity, the queue and the sync manager.
type Orchestrator struct {
	queue    Counter
	syncer   Syncer
	monitor  *Monitor
	logger   *slog.Logger
	autoSync bool

	mu      sync.RWMutex
	subs    map[int]chan Event
	nextSub int
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(q Counter, s Syncer, monitor *Monitor, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		queue:   q,
		syncer:  s,
		monitor: monitor,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
		subs:    make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PendingCount returns the number of mutations waiting for a pass.
func (o *Orchestrator) PendingCount(ctx context.Context) (int, error) {
	pending := queue.StatusPending
	return o.queue.Count(ctx, &pending)
}

// Online reports the monitor's view of connectivity.
func (o *Orchestrator) Online() bool {
	return o.monitor != nil && o.monitor.Online()
}

// CanSync reports whether a pass would do useful work now: the remote is
// reachable, mutations are pending and no pass is running.
func (o *Orchestrator) CanSync(ctx context.Context) bool {
	if !o.Online() || o.syncer.Running() {
		return false
	}
	n, err := o.PendingCount(ctx)
	if err != nil {
		o.logger.Warn("could not count pending mutations", logging.Error(err))
		return false
	}
	return n > 0
}

// State returns the sync read model.
func (o *Orchestrator) State() syncer.SyncState {
	return o.syncer.Snapshot()
}

// StartSync runs a pass, reporting progress to onProgress and to every
// subscriber. It does not check connectivity; a pass against an unreachable
// remote rolls back.
func (o *Orchestrator) StartSync(ctx context.Context, onProgress func(syncer.Progress)) syncer.Result {
	result := o.syncer.Run(ctx, func(p syncer.Progress) {
		if onProgress != nil {
			onProgress(p)
		}
		progress := p
		o.publish(Event{Type: EventProgress, Progress: &progress})
	})
	if !result.Skipped {
		final := result
		o.publish(Event{Type: EventResult, Result: &final, Error: final.ErrorMessage()})
	}
	return result
}

// Run relays connectivity transitions to subscribers and, when auto sync is
// enabled, starts a pass after reconnecting. It blocks until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.monitor == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	transitions, cancel := o.monitor.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-transitions:
			o.publish(Event{Type: EventConnectivity})
			if t.Online {
				o.handleReconnect(ctx)
			}
		}
	}
}

func (o *Orchestrator) handleReconnect(ctx context.Context) {
	if !o.monitor.JustCameBackOnline() {
		return
	}
	if !o.autoSync {
		o.logger.Info("remote reachable again; sync when ready")
		return
	}
	o.monitor.Acknowledge()
	if !o.CanSync(ctx) {
		return
	}
	o.logger.Info("starting sync after reconnect")
	o.StartSync(ctx, nil)
}

// Subscribe registers a listener. Slow subscribers miss events.
func (o *Orchestrator) Subscribe() (int, <-chan Event) {
	ch := make(chan Event, 64)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (o *Orchestrator) Unsubscribe(id int) {
	o.mu.Lock()
	ch, ok := o.subs[id]
	delete(o.subs, id)
	o.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (o *Orchestrator) publish(event Event) {
	event.State = o.syncer.Snapshot()
	event.Online = o.Online()

	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.subs {
		select {
		case ch <- event:
		default:
			o.logger.Debug("dropping event for slow subscriber", logging.String("type", string(event.Type)))
		}
	}
}
