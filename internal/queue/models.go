package queue

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the remote write a mutation replays.
type Kind string

const (
	KindAdd    Kind = "ADD"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// Status represents the sync state of a queued mutation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// OrderSentinel marks payloads whose row position is irrelevant (updates and deletes).
const OrderSentinel = -1

// TimestampLayout is the client timestamp format: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var (
	knownKinds    = []Kind{KindAdd, KindUpdate, KindDelete}
	knownStatuses = []Status{StatusPending, StatusSyncing, StatusFailed}
)

// ParseKind normalizes a kind string, accepting any letter case.
func ParseKind(value string) (Kind, error) {
	candidate := Kind(strings.ToUpper(strings.TrimSpace(value)))
	for _, k := range knownKinds {
		if k == candidate {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown mutation kind %q", value)
}

// ParseStatus normalizes a status string, accepting any letter case.
func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range knownStatuses {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown mutation status %q", value)
}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	out := make([]Status, len(knownStatuses))
	copy(out, knownStatuses)
	return out
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed:
		return true
	default:
		return false
	}
}

// Payload carries the operation-specific data of a mutation.
type Payload struct {
	Code          string   `json:"code,omitempty"`
	RowID         string   `json:"row_id"`
	OrderInRow    int      `json:"order_in_row"`
	Timestamp     string   `json:"timestamp"`
	LocalSequence int64    `json:"local_sequence"`
	UserID        string   `json:"user_id,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	RecordID      string   `json:"record_id,omitempty"`
	OldCode       string   `json:"old_code,omitempty"`
	NewCode       string   `json:"new_code,omitempty"`
}

// Time parses the payload timestamp.
func (p Payload) Time() (time.Time, error) {
	return parseTimeString(p.Timestamp)
}

// Date returns the calendar date (YYYY-MM-DD) of the payload timestamp as written
// by the client, falling back to the raw prefix when it cannot be parsed.
func (p Payload) Date() string {
	if ts, err := p.Time(); err == nil {
		return ts.Format(time.DateOnly)
	}
	if len(p.Timestamp) >= len(time.DateOnly) {
		return p.Timestamp[:len(time.DateOnly)]
	}
	return p.Timestamp
}

// Mutation is a queued, not-yet-confirmed write intended for the remote store.
type Mutation struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
}

// TargetID returns the remote record identifier the mutation acts on. ADD
// mutations use their own id as the remote primary key.
func (m Mutation) TargetID() string {
	if m.Kind == KindAdd {
		return m.ID
	}
	return m.Payload.RecordID
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	ExpectedVersion  string   `json:"expected_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingTables    []string `json:"missing_tables,omitempty"`
	TotalMutations   int      `json:"total_mutations"`
	TrackedRows      int      `json:"tracked_rows"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error,omitempty"`
}
