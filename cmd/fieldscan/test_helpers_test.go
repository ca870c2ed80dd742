package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/remote/server"
	"fieldscan/internal/remote/sqlstore"
	"fieldscan/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	records    *sqlstore.Store
	remote     *httptest.Server
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("FIELDSCAN_REMOTE_URL", "")
	t.Setenv("FIELDSCAN_REMOTE_TOKEN", "")
	t.Setenv("FIELDSCAN_USER_ID", "")

	records, err := sqlstore.Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("sqlstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = records.Close() })
	srv := httptest.NewServer(server.New(records, logging.NewNop()))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithRemoteURL(srv.URL))
	configPath := filepath.Join(t.TempDir(), "fieldscan.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, records: records, remote: srv}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string, extra ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	flags = append(flags, extra...)
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
