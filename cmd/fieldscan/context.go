package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"fieldscan/internal/api"
	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/scans"
	"fieldscan/internal/stats"
	"fieldscan/internal/syncer"
)

const agentStatusTimeout = 2 * time.Second

type commandContext struct {
	agentFlag  *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(agentFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		agentFlag:  agentFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) agentAddress() string {
	if c.agentFlag != nil {
		if addr := strings.TrimSpace(*c.agentFlag); addr != "" {
			return addr
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.Paths.APIBind
}

// agentClient returns a client for a running agent, or nil when none answers.
func (c *commandContext) agentClient(ctx context.Context) *api.Client {
	addr := c.agentAddress()
	if addr == "" {
		return nil
	}
	statusClient := api.NewClient(addr, agentStatusTimeout)
	statusCtx, cancel := context.WithTimeout(ctx, agentStatusTimeout)
	defer cancel()
	if _, err := statusClient.Status(statusCtx); err != nil {
		return nil
	}
	timeout := 5 * time.Minute
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		timeout = cfg.RemoteTimeout() + 10*time.Minute
	}
	return api.NewClient(addr, timeout)
}

// cliLogger writes warnings and errors to stderr.
func (c *commandContext) cliLogger() *slog.Logger {
	format := "console"
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withStore(fn func(store *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// withAgentOrStore prefers a running agent and falls back to the local store.
// Exactly one of client and store is non-nil.
func (c *commandContext) withAgentOrStore(ctx context.Context, fn func(client *api.Client, store *queue.Store) error) error {
	if client := c.agentClient(ctx); client != nil {
		return fn(client, nil)
	}
	return c.withStore(func(store *queue.Store) error {
		return fn(nil, store)
	})
}

func (c *commandContext) remoteClient(logger *slog.Logger) (*remote.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return remote.NewClient(cfg.Remote.BaseURL, cfg.RemoteTimeout(),
		remote.WithToken(cfg.Remote.APIToken),
		remote.WithLogger(logger),
	), nil
}

func (c *commandContext) scanService(store *queue.Store, logger *slog.Logger) *scans.Service {
	var userID string
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		userID = cfg.Device.UserID
	}
	return scans.New(store, time.Now, logger, scans.WithDefaultUser(userID))
}

// localSyncer builds a sync manager that shares the cross-process sync lock
// with the agent.
func (c *commandContext) localSyncer(store *queue.Store, client *remote.Client, logger *slog.Logger) (*syncer.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return syncer.New(store, client, stats.New(client, logger), logger,
		syncer.WithRequestTimeout(cfg.RequestTimeout()),
		syncer.WithLock(cfg.SyncLockPath()),
	), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
