package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fieldscan/internal/api"
	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/network"
	"fieldscan/internal/preflight"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/scans"
	"fieldscan/internal/stats"
	"fieldscan/internal/syncer"
)

// Agent coordinates the background services and enforces single-instance execution.
type Agent struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	remote  remote.Store
	scans   *scans.Service
	syncer  *syncer.Manager
	monitor *network.Monitor
	orch    *network.Orchestrator

	lockPath string
	lock     *flock.Flock

	api      *apiServer
	hub      *hub
	importer *importer

	snapMu    sync.RWMutex
	snapshots map[string][]remote.Record

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an agent with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, remoteStore remote.Store, logger *slog.Logger) (*Agent, error) {
	if cfg == nil || store == nil || remoteStore == nil {
		return nil, errors.New("agent requires config, store, and remote store")
	}
	logger = logging.NewComponentLogger(logger, "agent")

	svc := scans.New(store, time.Now, logger, scans.WithDefaultUser(cfg.Device.UserID))
	mgr := syncer.New(store, remoteStore, stats.New(remoteStore, logger), logger,
		syncer.WithRequestTimeout(cfg.RequestTimeout()),
		syncer.WithLock(cfg.SyncLockPath()),
	)
	monitor := network.NewMonitor(remoteStore, logger,
		network.WithCheckInterval(cfg.CheckInterval()),
		network.WithCheckTimeout(cfg.RemoteTimeout()),
		network.WithNetlink(cfg.Sync.UseNetlink),
	)
	orch := network.NewOrchestrator(store, mgr, monitor, logger,
		network.WithAutoSync(cfg.Sync.AutoOnReconnect),
	)

	a := &Agent{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		remote:    remoteStore,
		scans:     svc,
		syncer:    mgr,
		monitor:   monitor,
		orch:      orch,
		lockPath:  cfg.AgentLockPath(),
		lock:      flock.New(cfg.AgentLockPath()),
		hub:       newHub(logger),
		snapshots: make(map[string][]remote.Record),
	}
	a.hub.snapshot = a.snapshotEvent
	a.api = newAPIServer(strings.TrimSpace(cfg.Paths.APIBind), a, logger)
	if dir := strings.TrimSpace(cfg.Paths.InboxDir); dir != "" {
		a.importer = newImporter(dir, svc, logger)
	}
	return a, nil
}

// Start acquires the agent lock, recovers interrupted passes and launches the
// background services.
func (a *Agent) Start(ctx context.Context) error {
	if a.running.Load() {
		return errors.New("agent already running")
	}

	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldscan agent is already running")
	}

	recovered, err := a.store.ResetSyncing(ctx)
	if err != nil {
		_ = a.lock.Unlock()
		return fmt.Errorf("recover syncing mutations: %w", err)
	}
	if recovered > 0 {
		logging.WarnWithContext(a.logger, "recovered mutations from an interrupted sync", "sync_recovered",
			logging.Int64("mutations", recovered),
			logging.String(logging.FieldErrorHint, "run sync to replay them"),
			logging.String(logging.FieldImpact, "none; replays are idempotent"),
		)
	}

	for _, check := range preflight.Failed(preflight.RunAll(ctx, a.cfg, nil)) {
		logging.WarnWithContext(a.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldErrorHint, "fix directory permissions in the [paths] config section"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := a.api.start(runCtx); err != nil {
		cancel()
		_ = a.lock.Unlock()
		return err
	}
	a.cancel = cancel

	subID, events := a.orch.Subscribe()
	a.goRun(func() {
		defer a.orch.Unsubscribe(subID)
		a.hub.run(runCtx, events)
	})
	a.goRun(func() { _ = a.monitor.Run(runCtx) })
	a.goRun(func() { _ = a.orch.Run(runCtx) })

	if a.importer != nil {
		if err := a.importer.Start(runCtx); err != nil {
			logging.WarnWithContext(a.logger, "inbox importer unavailable", "inbox_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions of paths.inbox_dir"),
				logging.String(logging.FieldImpact, "scanner exports are not imported automatically"),
			)
		}
	}

	a.running.Store(true)
	a.logger.Info("fieldscan agent started",
		logging.String("lock", a.lockPath),
		logging.String("api", a.api.Addr()),
	)
	return nil
}

// Stop stops background processing and releases the agent lock. A stopped
// agent cannot be started again.
func (a *Agent) Stop() {
	if !a.running.Load() {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.api.stop()
	if a.importer != nil {
		a.importer.Stop()
	}
	a.hub.closeAll()
	a.wg.Wait()
	if err := a.lock.Unlock(); err != nil {
		a.logger.Warn("failed to release agent lock", logging.Error(err))
	}
	a.running.Store(false)
	a.logger.Info("fieldscan agent stopped")
}

// Close releases resources held by the agent.
func (a *Agent) Close() error {
	a.Stop()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Addr returns the address the status API listens on.
func (a *Agent) Addr() string {
	return a.api.Addr()
}

// Scans returns the mutation queuing service.
func (a *Agent) Scans() *scans.Service {
	return a.scans
}

// Orchestrator returns the sync orchestrator.
func (a *Agent) Orchestrator() *network.Orchestrator {
	return a.orch
}

// Monitor returns the connectivity monitor.
func (a *Agent) Monitor() *network.Monitor {
	return a.monitor
}

// Status summarizes the agent for API consumers.
func (a *Agent) Status(ctx context.Context) (api.AgentStatus, error) {
	counts, err := a.store.CountByStatus(ctx)
	if err != nil {
		return api.AgentStatus{}, err
	}
	return api.AgentStatus{
		Running:       a.running.Load(),
		PID:           os.Getpid(),
		QueueDBPath:   a.store.Path(),
		LockFilePath:  a.lockPath,
		RemoteURL:     a.cfg.Remote.BaseURL,
		Online:        a.monitor.Online(),
		LastOnlineAt:  api.FormatTime(a.monitor.LastOnlineAt()),
		LastOfflineAt: api.FormatTime(a.monitor.LastOfflineAt()),
		Pending:       counts[queue.StatusPending],
		CanSync:       a.orch.CanSync(ctx),
		AutoSync:      a.cfg.Sync.AutoOnReconnect,
		QueueStats:    api.FromCounts(counts),
		Sync:          api.FromSyncState(a.orch.State()),
	}, nil
}

// MergedRow returns a row's display records. The remote snapshot is fetched
// when online; otherwise the last fetched snapshot is used.
func (a *Agent) MergedRow(ctx context.Context, rowID string) (api.MergedRow, error) {
	snapshot, stale := a.snapshot(ctx, rowID)
	records, err := a.scans.MergedRecordsForRow(ctx, rowID, snapshot)
	if err != nil {
		return api.MergedRow{}, err
	}
	return api.MergedRow{
		RowID:         rowID,
		SnapshotStale: stale,
		Records:       api.FromRecords(records),
	}, nil
}

func (a *Agent) snapshot(ctx context.Context, rowID string) ([]remote.Record, bool) {
	if a.monitor.Online() {
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.RemoteTimeout())
		records, err := a.remote.RowRecords(fetchCtx, rowID)
		cancel()
		if err == nil {
			a.snapMu.Lock()
			a.snapshots[rowID] = records
			a.snapMu.Unlock()
			return records, false
		}
		a.logger.Debug("row snapshot fetch failed; using cached snapshot",
			logging.String(logging.FieldRowID, rowID),
			logging.Error(err),
		)
	}
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapshots[rowID], true
}

func (a *Agent) snapshotEvent() api.Event {
	return api.Event{
		Type:      "snapshot",
		Timestamp: api.FormatTime(time.Now()),
		Online:    a.monitor.Online(),
		Sync:      api.FromSyncState(a.orch.State()),
	}
}

func (a *Agent) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}
