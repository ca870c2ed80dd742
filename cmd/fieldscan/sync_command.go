package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"fieldscan/internal/api"
	"fieldscan/internal/queue"
	"fieldscan/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var local bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending mutations against the remote store",
		Long: "Replays pending mutations in order. The first failure rolls every mutation of the pass\n" +
			"back to pending so the next run starts from the same point.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.SyncResponse
			if client := ctx.agentClient(cmd.Context()); client != nil && !local {
				result, err := client.Sync(cmd.Context())
				if err != nil {
					return err
				}
				resp = *result
			} else {
				err := ctx.withStore(func(store *queue.Store) error {
					result, err := runLocalSync(cmd, ctx, store, !quiet && !ctx.JSONMode())
					resp = api.FromResult(result)
					return err
				})
				if err != nil {
					return err
				}
			}

			if ctx.JSONMode() {
				if err := writeJSON(cmd, resp); err != nil {
					return err
				}
			} else {
				printSyncResult(cmd.OutOrStdout(), resp)
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", errSyncIncomplete, resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Sync from this process even when an agent is running")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return cmd
}

func runLocalSync(cmd *cobra.Command, ctx *commandContext, store *queue.Store, showProgress bool) (syncer.Result, error) {
	logger := ctx.cliLogger()
	client, err := ctx.remoteClient(logger)
	if err != nil {
		return syncer.Result{}, err
	}
	mgr, err := ctx.localSyncer(store, client, logger)
	if err != nil {
		return syncer.Result{}, err
	}

	var bar *progressbar.ProgressBar
	result := mgr.Run(cmd.Context(), func(p syncer.Progress) {
		if !showProgress || p.Total == 0 {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("syncing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(p.Done)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if result.Skipped {
		return result, fmt.Errorf("sync skipped: %s", result.ErrorMessage())
	}
	return result, nil
}

func printSyncResult(out io.Writer, resp api.SyncResponse) {
	switch {
	case resp.Success && resp.SyncedCount == 0:
		fmt.Fprintln(out, "Nothing to sync")
	case resp.Success:
		color.New(color.FgGreen).Fprintf(out, "Synced %d mutations", resp.SyncedCount)
		fmt.Fprintf(out, " in %dms\n", resp.DurationMS)
	default:
		color.New(color.FgRed).Fprintf(out, "Sync rolled back after %d of %d mutations", resp.SyncedCount, resp.SyncedCount+resp.FailedCount)
		fmt.Fprintln(out)
		if resp.Error != "" {
			fmt.Fprintf(out, "Error: %s\n", resp.Error)
		}
	}
	for _, msg := range resp.StatsErrors {
		color.New(color.FgYellow).Fprintf(out, "Stats warning: %s\n", msg)
	}
}
