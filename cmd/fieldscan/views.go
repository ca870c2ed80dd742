package main

import (
	"fmt"
	"strings"
	"time"

	"fieldscan/internal/api"
	"fieldscan/internal/queue"
)

func buildQueueStatusRows(counts map[string]int) [][]string {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	rows := make([][]string, 0, len(counts))
	for _, key := range api.SortedStatuses(counts) {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", counts[key])})
	}
	return rows
}

// buildQueueListRows keeps replay order; the queue already returns it.
func buildQueueListRows(items []api.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		code := item.Code
		if item.Kind == string(queue.KindUpdate) || item.Kind == string(queue.KindDelete) {
			code = fmt.Sprintf("%s (%s)", code, shortID(item.RecordID))
		}
		order := "-"
		if item.OrderInRow != queue.OrderSentinel {
			order = fmt.Sprintf("%d", item.OrderInRow)
		}
		rows = append(rows, []string{
			shortID(item.ID),
			item.Kind,
			formatStatusLabel(item.Status),
			item.RowID,
			order,
			code,
			fmt.Sprintf("%d", item.LocalSequence),
			formatDisplayTime(item.Timestamp),
		})
	}
	return rows
}

func buildRecordRows(records []api.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		state := "synced"
		if rec.Pending {
			state = "pending"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", rec.OrderInRow),
			rec.Code,
			state,
			rec.UserID,
			formatDisplayTime(rec.ScannedAt),
			shortID(rec.ID),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	return strings.ToUpper(status[:1]) + strings.ToLower(status[1:])
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
