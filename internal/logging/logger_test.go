package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("agent started")

	content := readLog(t, cfg.LogFilePath())
	if !strings.Contains(content, "agent started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no color codes in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := readLog(t, logPath); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerLiftsComponentAndRow(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRowID(context.Background(), "R12")
	component := logging.NewComponentLogger(logger, "syncer")
	logging.WithContext(ctx, component).Info("pass completed", logging.Int("synced", 4), logging.String("note", "two words"))

	content := readLog(t, logPath)
	for _, fragment := range []string{"INFO syncer: pass completed", "[row=R12]", "synced=4", `note="two words"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestNewJSONLoggerUsesCanonicalKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("remote slow", logging.String("k", "v"))

	var entry map[string]any
	line := strings.TrimSpace(readLog(t, logPath))
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode json log line %q: %v", line, err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if entry["k"] != "v" {
		t.Fatalf("expected attribute k=v, got %v", entry["k"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible")

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden") || !strings.Contains(content, "visible") {
		t.Fatalf("expected info level filtering, got %q", content)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "stats skipped", "stats_skipped", logging.Error(errors.New("boom")))

	content := readLog(t, logPath)
	for _, key := range []string{`"event_type":"stats_skipped"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(content, key) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPassID(ctx, "pass-1")
	ctx = services.WithMutationID(ctx, "m-1")
	ctx = services.WithRequestID(ctx, "req-xyz")

	fields := logging.ContextFields(ctx)
	want := map[string]string{
		logging.FieldPassID:        "pass-1",
		logging.FieldMutationID:    "m-1",
		logging.FieldCorrelationID: "req-xyz",
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for _, f := range fields {
		if want[f.Key] != f.Value.String() {
			t.Fatalf("field %s = %q, want %q", f.Key, f.Value.String(), want[f.Key])
		}
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("expected no-op logger to be disabled")
	}
}

func TestPassOutcomeOmitsZeroFailures(t *testing.T) {
	attrs := logging.PassOutcome(3, 0, 0)
	for _, a := range attrs {
		if a.Key == logging.FieldFailed {
			t.Fatalf("expected no failed attr for a clean pass, got %v", attrs)
		}
	}
	attrs = logging.PassOutcome(2, 3, 0)
	found := false
	for _, a := range attrs {
		if a.Key == logging.FieldFailed && a.Value.Int64() == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failed=3 in %v", attrs)
	}
}

func TestMutationAttrs(t *testing.T) {
	if got := logging.Mutation("ADD", ""); len(got) != 1 || got[0].Key != logging.FieldMutationKind {
		t.Fatalf("expected kind only, got %v", got)
	}
	got := logging.Mutation("DELETE", "m-1")
	if len(got) != 2 || got[1].Key != logging.FieldMutationID || got[1].Value.String() != "m-1" {
		t.Fatalf("expected kind and id, got %v", got)
	}
}

func TestJSONLoggerRendersErrorsAsText(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "err.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cause := services.Wrap(services.ErrRemoteFailure, "syncer", "ADD", "m-1", errors.New("connection refused"))
	logger.Error("pass failed", logging.Error(cause))

	var entry map[string]any
	line := strings.TrimSpace(readLog(t, logPath))
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode json log line %q: %v", line, err)
	}
	msg, ok := entry["error"].(string)
	if !ok || !strings.Contains(msg, "connection refused") {
		t.Fatalf("expected error text, got %v", entry["error"])
	}
}
