// Command fieldscan-remote serves a reference system of record over HTTP,
// backed by a SQLite database. Field agents sync against it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/remote/server"
	"fieldscan/internal/remote/sqlstore"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var bindFlag string
	var dbFlag string

	cmd := &cobra.Command{
		Use:           "fieldscan-remote",
		Short:         "Reference remote store for fieldscan agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if bindFlag != "" {
				cfg.Server.Bind = bindFlag
			}
			if dbFlag != "" {
				expanded, err := config.ExpandPath(dbFlag)
				if err != nil {
					return fmt.Errorf("resolve database path: %w", err)
				}
				cfg.Server.DatabasePath = expanded
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (defaults to server.bind)")
	cmd.Flags().StringVar(&dbFlag, "db", "", "Database path (defaults to server.database_path)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(parent, unix.SIGINT, unix.SIGTERM)
	defer cancel()

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := sqlstore.Open(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("open remote database: %w", err)
	}
	defer store.Close()

	srv := &http.Server{
		Handler:           server.New(store, logger, server.WithToken(cfg.Remote.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	logger.Info("remote store listening",
		logging.String("address", listener.Addr().String()),
		logging.String("database", cfg.Server.DatabasePath),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	logger.Info("remote store shutting down")
	return srv.Shutdown(shutdownCtx)
}
