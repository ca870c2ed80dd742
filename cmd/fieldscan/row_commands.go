package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fieldscan/internal/api"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
)

func newRowCommand(ctx *commandContext) *cobra.Command {
	rowCmd := &cobra.Command{
		Use:   "row",
		Short: "Inspect rows",
	}
	rowCmd.AddCommand(newRowShowCommand(ctx))
	return rowCmd
}

func newRowShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <row-id>",
		Short: "Show a row's records with pending changes applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rowID := args[0]
			var row *api.MergedRow
			err := ctx.withAgentOrStore(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var err error
				if client != nil {
					row, err = client.MergedRow(cmd.Context(), rowID)
					return err
				}
				row, err = localMergedRow(cmd.Context(), ctx, store, rowID)
				return err
			})
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, row)
			}
			out := cmd.OutOrStdout()
			if row.SnapshotStale {
				color.New(color.FgYellow).Fprintln(out, "Remote unreachable; showing cached or local data only")
			}
			if len(row.Records) == 0 {
				fmt.Fprintf(out, "Row %s has no records\n", rowID)
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"Order", "Code", "State", "User", "Scanned", "ID"},
				buildRecordRows(row.Records),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

// localMergedRow reads the remote snapshot directly. Without an agent there is
// no snapshot cache, so an unreachable remote yields only pending records.
func localMergedRow(ctx context.Context, cc *commandContext, store *queue.Store, rowID string) (*api.MergedRow, error) {
	logger := cc.cliLogger()
	client, err := cc.remoteClient(logger)
	if err != nil {
		return nil, err
	}
	snapshot, stale := fetchSnapshot(ctx, client, rowID, logger)
	records, err := cc.scanService(store, logger).MergedRecordsForRow(ctx, rowID, snapshot)
	if err != nil {
		return nil, err
	}
	return &api.MergedRow{RowID: rowID, SnapshotStale: stale, Records: api.FromRecords(records)}, nil
}

func fetchSnapshot(ctx context.Context, client *remote.Client, rowID string, logger *slog.Logger) ([]remote.Record, bool) {
	records, err := client.RowRecords(ctx, rowID)
	if err != nil {
		logger.Debug("remote snapshot unavailable", logging.String(logging.FieldRowID, rowID), logging.Error(err))
		return nil, true
	}
	return records, false
}
