package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldscan/internal/agent"
	"fieldscan/internal/api"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/testsupport"
)

func TestScanAddListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", "abc-1", "--order", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("scan add: %v", err)
	}
	requireContains(t, out, "Queued ADD")
	requireContains(t, out, "sequence 1")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "ABC-1")
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, []string{"queue", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(resp.Items) != 1 || resp.Items[0].UserID != "tester" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestScanAddRejectsInvalidInput(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", "X", "--at", "yesterday"}, env.configPath); err == nil {
		t.Fatal("expected invalid --at to fail")
	}
	if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", "X", "--lat", "123"}, env.configPath); err == nil {
		t.Fatal("expected out-of-range latitude to fail")
	}
	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "done"}, env.configPath); err == nil {
		t.Fatal("expected unknown status filter to fail")
	}
}

func TestSyncReplaysAgainstRemote(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, code := range []string{"A1", "A2"} {
		if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", code}, env.configPath); err != nil {
			t.Fatalf("scan add %s: %v", code, err)
		}
	}

	out, _, err := runCLI(t, []string{"sync", "--quiet"}, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "Synced 2 mutations")

	records, err := env.records.RowRecords(context.Background(), "R1")
	if err != nil {
		t.Fatalf("RowRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 remote records, got %d", len(records))
	}

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	out, _, err = runCLI(t, []string{"sync", "--quiet"}, env.configPath)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	requireContains(t, out, "Nothing to sync")
}

func TestSyncFailureKeepsMutationsPending(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", "A1"}, env.configPath); err != nil {
		t.Fatalf("scan add: %v", err)
	}
	env.remote.Close()

	out, _, err := runCLI(t, []string{"sync", "--quiet"}, env.configPath)
	if err == nil {
		t.Fatal("expected sync against a closed remote to fail")
	}
	if exitCode(err) != exitSyncFailed {
		t.Fatalf("expected sync exit status %d, got %d (%v)", exitSyncFailed, exitCode(err), err)
	}
	requireContains(t, out, "rolled back")

	store := testsupport.MustOpenStore(t, env.cfg)
	pending := queue.StatusPending
	n, err := store.Count(context.Background(), &pending)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected mutation to stay pending, got %d pending", n)
	}
}

func TestRowShowMergesPendingChanges(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	if err := env.records.Insert(ctx, remote.Record{
		ID: "confirmed-1", Code: "OLD1", RowID: "R1", OrderInRow: 1, ScannedAt: "2026-10-01T08:00:00.000Z",
	}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", "NEW2", "--order", "2"}, env.configPath); err != nil {
		t.Fatalf("scan add: %v", err)
	}
	if _, _, err := runCLI(t, []string{"scan", "update", "--row", "R1", "--record", "confirmed-1", "--old", "OLD1", "--new", "FIXED1"}, env.configPath); err != nil {
		t.Fatalf("scan update: %v", err)
	}

	out, _, err := runCLI(t, []string{"row", "show", "R1"}, env.configPath)
	if err != nil {
		t.Fatalf("row show: %v", err)
	}
	requireContains(t, out, "FIXED1")
	requireContains(t, out, "NEW2")
	requireContains(t, out, "pending")
	requireNotContains(t, out, "OLD1")

	if _, _, err := runCLI(t, []string{"scan", "delete", "--row", "R1", "--record", "confirmed-1"}, env.configPath); err != nil {
		t.Fatalf("scan delete: %v", err)
	}
	out, _, err = runCLI(t, []string{"row", "show", "R1"}, env.configPath)
	if err != nil {
		t.Fatalf("row show after delete: %v", err)
	}
	requireNotContains(t, out, "FIXED1")
}

func TestQueueMaintenanceCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R1", "--code", "A1"}, env.configPath); err != nil {
		t.Fatalf("scan add: %v", err)
	}

	if _, _, err := runCLI(t, []string{"queue", "clear"}, env.configPath); err == nil {
		t.Fatal("expected clear without --force to refuse")
	}
	if _, _, err := runCLI(t, []string{"queue", "reset-sequences"}, env.configPath); err == nil {
		t.Fatal("expected reset-sequences on a non-empty queue to refuse")
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "No failed mutations")

	out, _, err = runCLI(t, []string{"queue", "clear", "--force"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 mutations")

	out, _, err = runCLI(t, []string{"queue", "reset-sequences"}, env.configPath)
	if err != nil {
		t.Fatalf("reset-sequences: %v", err)
	}
	requireContains(t, out, "reset")

	out, _, err = runCLI(t, []string{"queue", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Missing tables: none")
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	env.cfg.Remote.APIToken = "secret-token"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	requireNotContains(t, out, "secret-token")

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestCommandsUseRunningAgent(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	client := remote.NewClient(env.cfg.Remote.BaseURL, env.cfg.RemoteTimeout())
	a, err := agent.New(env.cfg, store, client, logging.NewNop())
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("agent start: %v", err)
	}
	t.Cleanup(a.Stop)
	agentFlag := []string{"--agent", a.Addr()}

	if _, _, err := runCLI(t, []string{"scan", "add", "--row", "R9", "--code", "Z9"}, env.configPath); err != nil {
		t.Fatalf("scan add: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath, agentFlag...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running (pid")
	requireContains(t, out, "Remote store")

	out, _, err = runCLI(t, []string{"sync"}, env.configPath, agentFlag...)
	if err != nil {
		t.Fatalf("sync via agent: %v", err)
	}
	requireContains(t, out, "Synced 1 mutations")

	deadline := time.Now().Add(5 * time.Second)
	for !a.Monitor().Online() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	out, _, err = runCLI(t, []string{"row", "show", "R9", "--json"}, env.configPath, agentFlag...)
	if err != nil {
		t.Fatalf("row show via agent: %v", err)
	}
	var row api.MergedRow
	if err := json.Unmarshal([]byte(out), &row); err != nil {
		t.Fatalf("decode row: %v\n%s", err, out)
	}
	if len(row.Records) != 1 || row.Records[0].Pending {
		t.Fatalf("expected one confirmed record, got %+v", row.Records)
	}
}
