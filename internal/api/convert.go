package api

import (
	"sort"
	"strings"
	"time"

	"fieldscan/internal/network"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/syncer"
)

// FromMutation converts a queued mutation into its transport representation.
func FromMutation(m *queue.Mutation) QueueItem {
	if m == nil {
		return QueueItem{}
	}
	item := QueueItem{
		ID:            m.ID,
		Kind:          strings.ToLower(string(m.Kind)),
		Status:        string(m.Status),
		RowID:         m.Payload.RowID,
		Code:          m.Payload.Code,
		OrderInRow:    m.Payload.OrderInRow,
		UserID:        m.Payload.UserID,
		Timestamp:     m.Payload.Timestamp,
		LocalSequence: m.Payload.LocalSequence,
		CreatedAt:     FormatTime(m.CreatedAt),
	}
	if m.Kind != queue.KindAdd {
		item.RecordID = m.Payload.RecordID
	}
	if m.Kind == queue.KindUpdate {
		item.Code = m.Payload.NewCode
	}
	return item
}

// FromMutations converts a slice of mutations, preserving order.
func FromMutations(mutations []*queue.Mutation) []QueueItem {
	items := make([]QueueItem, 0, len(mutations))
	for _, m := range mutations {
		items = append(items, FromMutation(m))
	}
	return items
}

// FromCounts converts per-status counts to a string-keyed map.
func FromCounts(counts map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}

// FromResult converts a sync result.
func FromResult(result syncer.Result) SyncResponse {
	resp := SyncResponse{
		PassID:      result.PassID,
		Success:     result.Success,
		Skipped:     result.Skipped,
		SyncedCount: result.SyncedCount,
		FailedCount: result.FailedCount,
		Error:       result.ErrorMessage(),
		DurationMS:  result.Duration.Milliseconds(),
	}
	if result.Stats != nil {
		for _, err := range result.Stats.Errors {
			resp.StatsErrors = append(resp.StatsErrors, err.Error())
		}
	}
	return resp
}

// FromSyncState converts the sync read model.
func FromSyncState(state syncer.SyncState) SyncStatus {
	status := SyncStatus{
		State:          string(state.State),
		IsSyncing:      state.IsSyncing,
		Progress:       state.Progress,
		Total:          state.Total,
		Error:          state.Error,
		LastFinishedAt: FormatTime(state.LastFinishedAt),
	}
	if state.LastResult != nil {
		last := FromResult(*state.LastResult)
		status.LastResult = &last
	}
	return status
}

// FromRecords converts display records.
func FromRecords(records []remote.Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, Record{
			ID:            rec.ID,
			Code:          rec.Code,
			RowID:         rec.RowID,
			OrderInRow:    rec.OrderInRow,
			ScannedAt:     rec.ScannedAt,
			UserID:        rec.UserID,
			Latitude:      rec.Latitude,
			Longitude:     rec.Longitude,
			LocalSequence: rec.LocalSequence,
			Pending:       rec.Pending,
		})
	}
	return out
}

// FromEvent converts an orchestrator event for websocket delivery.
func FromEvent(event network.Event, at time.Time) Event {
	out := Event{
		Type:      string(event.Type),
		Timestamp: FormatTime(at),
		Online:    event.Online,
		Sync:      FromSyncState(event.State),
	}
	if event.Progress != nil {
		out.PassID = event.Progress.PassID
		out.Done = event.Progress.Done
		out.Total = event.Progress.Total
	}
	if event.Result != nil {
		result := FromResult(*event.Result)
		out.PassID = result.PassID
		out.Result = &result
	}
	return out
}

// SortedStatuses returns the keys of a counts map in a stable order.
func SortedStatuses(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatTime renders t for API payloads; the zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
