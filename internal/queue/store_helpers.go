package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const mutationColumns = "id, kind, payload_json, status, created_at"

// replayOrder is the canonical ordering for every listing.
const replayOrder = "ORDER BY ts_key ASC, local_sequence ASC, created_at ASC, id ASC"

// sortLayout renders times at fixed width so text comparison matches time order.
const sortLayout = "2006-01-02T15:04:05.000000000"

func scanMutation(scanner interface{ Scan(dest ...any) error }) (*Mutation, error) {
	var (
		id          string
		kind        string
		payloadJSON string
		status      string
		createdRaw  string
	)
	if err := scanner.Scan(&id, &kind, &payloadJSON, &status, &createdRaw); err != nil {
		return nil, err
	}

	m := &Mutation{
		ID:     id,
		Kind:   Kind(kind),
		Status: Status(status),
	}
	if err := json.Unmarshal([]byte(payloadJSON), &m.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = created
	}
	return m, nil
}

// sortKey converts a client timestamp into its fixed-width UTC form. Values
// that cannot be parsed sort by their raw text.
func sortKey(timestamp string) string {
	ts, err := parseTimeString(timestamp)
	if err != nil {
		return strings.TrimSpace(timestamp)
	}
	return formatSortTime(ts)
}

func formatSortTime(t time.Time) string {
	return t.UTC().Format(sortLayout) + "Z"
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(sortLayout+"Z", value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
