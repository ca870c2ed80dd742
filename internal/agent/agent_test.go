package agent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"fieldscan/internal/agent"
	"fieldscan/internal/api"
	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/testsupport"
)

type harness struct {
	cfg    *config.Config
	store  *queue.Store
	remote *testsupport.FakeRemote
	agent  *agent.Agent
	client *api.Client
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	fake := testsupport.NewFakeRemote()
	a, err := agent.New(cfg, store, fake, logging.NewNop())
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	t.Cleanup(a.Stop)
	return &harness{cfg: cfg, store: store, remote: fake, agent: a}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.agent.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.client = api.NewClient(h.agent.Addr(), 5*time.Second)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAgentStartStop(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	status, err := h.agent.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected agent to report running")
	}
	if status.QueueDBPath != h.cfg.QueueDatabasePath() {
		t.Fatalf("unexpected queue path %q", status.QueueDBPath)
	}

	if err := h.agent.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.agent.Stop()
	status, err = h.agent.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatal("expected agent to be stopped")
	}
}

func TestAgentLockPreventsSecondInstance(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	other, err := agent.New(h.cfg, h.store, h.remote, logging.NewNop())
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil {
		other.Stop()
		t.Fatal("expected lock to prevent a second agent")
	}
}

func TestAgentRecoversInterruptedPass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := testsupport.NewScans(h.store, time.Now())
	m := testsupport.QueueAdd(t, svc, "R1", "A", 1)
	if err := h.store.SetStatus(ctx, m.ID, queue.StatusSyncing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	h.start(t)

	got, err := h.store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("expected recovered mutation to be pending, got %s", got.Status)
	}
}

func TestAPIQueueAndSync(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	body, _ := json.Marshal(api.ScanRequest{RowID: "R1", Code: "ABC123", OrderInRow: 1})
	resp, err := http.Post("http://"+h.agent.Addr()+"/api/scans", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/scans: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	items, err := h.client.Queue(ctx, "pending")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(items) != 1 || items[0].Code != "ABC123" || items[0].UserID != "tester" {
		t.Fatalf("unexpected queue items: %+v", items)
	}

	status, err := h.client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Pending != 1 {
		t.Fatalf("expected 1 pending, got %d", status.Pending)
	}

	result, err := h.client.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Success || result.SyncedCount != 1 {
		t.Fatalf("unexpected sync result: %+v", result)
	}
	if _, ok := h.remote.Record(items[0].ID); !ok {
		t.Fatal("expected record on remote after sync")
	}

	items, err = h.client.Queue(ctx)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected drained queue, got %d items", len(items))
	}
}

func TestAPIRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	base := "http://" + h.agent.Addr()

	resp, err := http.Get(base + "/api/queue?status=bogus")
	if err != nil {
		t.Fatalf("GET queue: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.StatusCode)
	}

	body, _ := json.Marshal(api.ScanRequest{RowID: "R1"})
	resp, err = http.Post(base+"/api/scans", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST scans: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing code, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/api/sync")
	if err != nil {
		t.Fatalf("GET sync: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET sync, got %d", resp.StatusCode)
	}
}

func TestMergedRowFallsBackToCachedSnapshot(t *testing.T) {
	h := newHarness(t)
	h.remote.Seed(remote.Record{ID: "confirmed-1", Code: "OLD", RowID: "R1", OrderInRow: 1, ScannedAt: "2026-10-01T08:00:00Z"})
	h.start(t)
	ctx := context.Background()

	waitFor(t, "monitor online", h.agent.Monitor().Online)

	row, err := h.client.MergedRow(ctx, "R1")
	if err != nil {
		t.Fatalf("MergedRow: %v", err)
	}
	if row.SnapshotStale || len(row.Records) != 1 {
		t.Fatalf("unexpected online row: %+v", row)
	}

	svc := h.agent.Scans()
	testsupport.QueueAdd(t, svc, "R1", "NEW", 2)
	h.remote.SetOffline(true)
	h.agent.Monitor().SetOnline(false)

	row, err = h.client.MergedRow(ctx, "R1")
	if err != nil {
		t.Fatalf("MergedRow offline: %v", err)
	}
	if !row.SnapshotStale {
		t.Fatal("expected stale snapshot while offline")
	}
	if len(row.Records) != 2 {
		t.Fatalf("expected cached record plus pending add, got %+v", row.Records)
	}
	pending := 0
	for _, rec := range row.Records {
		if rec.Pending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending record, got %d", pending)
	}
}

func TestWebsocketStreamsSyncEvents(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	testsupport.QueueAdd(t, h.agent.Scans(), "R1", "A", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+h.agent.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	readEvent := func() api.Event {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read websocket: %v", err)
		}
		var ev api.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	}

	if ev := readEvent(); ev.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %q", ev.Type)
	}

	go func() { _, _ = h.client.Sync(context.Background()) }()

	sawProgress := false
	for {
		ev := readEvent()
		switch ev.Type {
		case "progress":
			sawProgress = true
		case "result":
			if !sawProgress {
				t.Fatal("expected progress before result")
			}
			if ev.Result == nil || ev.Result.SyncedCount != 1 {
				t.Fatalf("unexpected result event: %+v", ev.Result)
			}
			return
		}
	}
}

func TestInboxImportsScannerExports(t *testing.T) {
	h := newHarness(t)
	inbox := h.cfg.Paths.InboxDir
	testsupport.WriteInboxFile(t, inbox, "early.csv",
		"row_id,code,order_in_row,user_id,timestamp,lat,lon",
		"R1,AAA,1,,2026-10-17T09:00:00Z,52.1,4.3",
		"R1,BBB,2",
	)
	h.start(t)
	ctx := context.Background()

	countAll := func() int {
		n, err := h.store.Count(ctx, nil)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		return n
	}
	waitFor(t, "existing file import", func() bool { return countAll() == 2 })
	if _, err := os.Stat(filepath.Join(inbox, "processed", "early.csv")); err != nil {
		t.Fatalf("expected early.csv archived: %v", err)
	}

	testsupport.WriteInboxFile(t, inbox, "late.csv", "R2,CCC,1,worker-2")
	waitFor(t, "watched file import", func() bool { return countAll() == 3 })

	testsupport.WriteInboxFile(t, inbox, "broken.csv", "R3,DDD,not-a-number")
	waitFor(t, "broken file rejected", func() bool {
		_, err := os.Stat(filepath.Join(inbox, "failed", "broken.csv"))
		return err == nil
	})
	if n := countAll(); n != 3 {
		t.Fatalf("expected broken file to queue nothing, got %d mutations", n)
	}

	rows, err := h.store.ListForRow(ctx, "R2")
	if err != nil {
		t.Fatalf("ListForRow: %v", err)
	}
	if len(rows) != 1 || rows[0].Payload.UserID != "worker-2" {
		t.Fatalf("unexpected R2 mutations: %+v", rows)
	}
}
