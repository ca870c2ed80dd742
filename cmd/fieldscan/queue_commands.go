package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"fieldscan/internal/api"
	"fieldscan/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the mutation queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueResetSequencesCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAgentOrStore(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var counts map[string]int
				if client != nil {
					status, err := client.Status(cmd.Context())
					if err != nil {
						return err
					}
					counts = status.QueueStats
				} else {
					stats, err := store.CountByStatus(cmd.Context())
					if err != nil {
						return err
					}
					counts = api.FromCounts(stats)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: counts})
				}
				rows := buildQueueStatusRows(counts)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued mutations in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(listStatuses))
			for _, value := range listStatuses {
				status, err := queue.ParseStatus(value)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			return ctx.withAgentOrStore(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var items []api.QueueItem
				if client != nil {
					names := make([]string, len(statuses))
					for i, s := range statuses {
						names[i] = string(s)
					}
					var err error
					if items, err = client.Queue(cmd.Context(), names...); err != nil {
						return err
					}
				} else {
					mutations, err := store.ListByStatus(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					items = api.FromMutations(mutations)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Status", "Row", "Order", "Code", "Seq", "Timestamp"},
					buildQueueListRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by mutation status (repeatable)")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued mutation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				total, err := store.Count(cmd.Context(), nil)
				if err != nil {
					return err
				}
				if total > 0 && !force {
					return fmt.Errorf("refusing to discard %d unsynced mutations (use --force)", total)
				}
				removed, err := store.ClearAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d mutations\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard mutations that were never synced")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Return failed mutations to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				updated, err := store.RetryFailed(cmd.Context())
				if err != nil {
					return err
				}
				if updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed mutations to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retrying %d failed mutations\n", updated)
				return nil
			})
		},
	}
}

func newQueueResetSequencesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-sequences",
		Short: "Reset per-row sequence counters of an empty queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				reset, err := store.ResetSequencesIfDrained(cmd.Context())
				if err != nil {
					return err
				}
				if !reset {
					return errors.New("queue is not empty; sequences can only be reset after every mutation has synced")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sequence counters reset")
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, tables, integrity)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil && health.Error == "" {
					health.Error = err.Error()
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", health.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %s (expected %s)\n", health.SchemaVersion, health.ExpectedVersion)
				if len(health.TablesPresent) > 0 {
					tables := append([]string(nil), health.TablesPresent...)
					sort.Strings(tables)
					fmt.Fprintf(out, "Tables: %s\n", strings.Join(tables, ", "))
				}
				if len(health.MissingTables) > 0 {
					fmt.Fprintf(out, "Missing tables: %s\n", strings.Join(health.MissingTables, ", "))
				} else {
					fmt.Fprintln(out, "Missing tables: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Total mutations: %d\n", health.TotalMutations)
				fmt.Fprintf(out, "Tracked rows: %d\n", health.TrackedRows)
				if health.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", health.Error)
				}
				return nil
			})
		},
	}
}
