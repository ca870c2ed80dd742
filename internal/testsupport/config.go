package testsupport

import (
	"path/filepath"
	"testing"

	"fieldscan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Device.UserID = "tester"
	cfgVal.Sync.UseNetlink = false
	cfgVal.Sync.RequestTimeoutSeconds = 5
	cfgVal.Sync.CheckIntervalSeconds = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRemoteURL points the config at a test server.
func WithRemoteURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.BaseURL = url
	}
}

// WithUserID overrides the device user id.
func WithUserID(userID string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.UserID = userID
	}
}

// WithAutoSync enables sync on reconnect.
func WithAutoSync() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.AutoOnReconnect = true
	}
}
