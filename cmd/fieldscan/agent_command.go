package main

import (
	"context"
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"fieldscan/internal/agent"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
)

func newAgentCommand(ctx *commandContext) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the background sync agent",
	}
	agentCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentProcess(cmd.Context(), ctx)
		},
	})
	return agentCmd
}

func runAgentProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, unix.SIGINT, unix.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.RemoteTimeout(),
		remote.WithToken(cfg.Remote.APIToken),
		remote.WithLogger(logger),
	)

	a, err := agent.New(cfg, store, client, logger)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	if err := a.Start(signalCtx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	defer a.Stop()

	<-signalCtx.Done()
	logger.Info("fieldscan agent shutting down")
	return nil
}
