package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fieldscan/internal/api"
	"fieldscan/internal/queue"
	"fieldscan/internal/scans"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Queue scan additions, corrections and removals",
	}

	scanCmd.AddCommand(newScanAddCommand(ctx))
	scanCmd.AddCommand(newScanUpdateCommand(ctx))
	scanCmd.AddCommand(newScanDeleteCommand(ctx))

	return scanCmd
}

func newScanAddCommand(ctx *commandContext) *cobra.Command {
	var (
		rowID  string
		code   string
		order  int
		userID string
		lat    float64
		lon    float64
		at     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a newly scanned code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseAtFlag(at)
			if err != nil {
				return err
			}
			req := scans.AddRequest{
				Code:       code,
				RowID:      rowID,
				OrderInRow: order,
				UserID:     userID,
				Timestamp:  ts,
			}
			if cmd.Flags().Changed("lat") {
				req.Latitude = &lat
			}
			if cmd.Flags().Changed("lon") {
				req.Longitude = &lon
			}
			return ctx.withStore(func(store *queue.Store) error {
				m, err := ctx.scanService(store, ctx.cliLogger()).QueueAdd(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printQueued(cmd, ctx, m)
			})
		},
	}

	cmd.Flags().StringVarP(&rowID, "row", "r", "", "Row identifier")
	cmd.Flags().StringVar(&code, "code", "", "Scanned barcode")
	cmd.Flags().IntVarP(&order, "order", "o", 0, "Position within the row")
	cmd.Flags().StringVar(&userID, "user", "", "User id (defaults to device.user_id)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude of the scan")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude of the scan")
	cmd.Flags().StringVar(&at, "at", "", "Scan time in RFC3339 (defaults to now)")
	_ = cmd.MarkFlagRequired("row")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newScanUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		rowID    string
		recordID string
		oldCode  string
		newCode  string
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Queue a correction of a record's code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				m, err := ctx.scanService(store, ctx.cliLogger()).QueueUpdate(cmd.Context(), scans.UpdateRequest{
					RecordID: recordID,
					RowID:    rowID,
					OldCode:  oldCode,
					NewCode:  newCode,
					UserID:   userID,
				})
				if err != nil {
					return err
				}
				return printQueued(cmd, ctx, m)
			})
		},
	}

	cmd.Flags().StringVarP(&rowID, "row", "r", "", "Row identifier")
	cmd.Flags().StringVar(&recordID, "record", "", "Id of the record to correct")
	cmd.Flags().StringVar(&oldCode, "old", "", "Current code")
	cmd.Flags().StringVar(&newCode, "new", "", "Corrected code")
	cmd.Flags().StringVar(&userID, "user", "", "User id (defaults to device.user_id)")
	_ = cmd.MarkFlagRequired("row")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func newScanDeleteCommand(ctx *commandContext) *cobra.Command {
	var (
		rowID    string
		recordID string
		code     string
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Queue the removal of a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				m, err := ctx.scanService(store, ctx.cliLogger()).QueueDelete(cmd.Context(), scans.DeleteRequest{
					RecordID: recordID,
					RowID:    rowID,
					Code:     code,
					UserID:   userID,
				})
				if err != nil {
					return err
				}
				return printQueued(cmd, ctx, m)
			})
		},
	}

	cmd.Flags().StringVarP(&rowID, "row", "r", "", "Row identifier")
	cmd.Flags().StringVar(&recordID, "record", "", "Id of the record to remove")
	cmd.Flags().StringVar(&code, "code", "", "Code of the record, for stats")
	cmd.Flags().StringVar(&userID, "user", "", "User id of the original scan, for stats")
	_ = cmd.MarkFlagRequired("row")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}

func parseAtFlag(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errors.New("--at must be an RFC3339 timestamp")
	}
	return &ts, nil
}

func printQueued(cmd *cobra.Command, ctx *commandContext, m *queue.Mutation) error {
	item := api.FromMutation(m)
	if ctx.JSONMode() {
		return writeJSON(cmd, item)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s for row %s (sequence %d)\n",
		item.Kind, shortID(item.ID), item.RowID, item.LocalSequence)
	return nil
}
