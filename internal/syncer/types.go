package syncer

import (
	"time"

	"fieldscan/internal/queue"
	"fieldscan/internal/stats"
)

// State is the lifecycle position of the most recent pass.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateRolledBack State = "rolled_back"
)

// Progress is reported before each mutation is dispatched and once more when
// the pass ends.
type Progress struct {
	PassID     string     `json:"pass_id"`
	Done       int        `json:"done"`
	Total      int        `json:"total"`
	MutationID string     `json:"mutation_id,omitempty"`
	Kind       queue.Kind `json:"kind,omitempty"`
}

// Result is the outcome of one pass. Failures are reported here rather than
// as a returned error.
type Result struct {
	PassID      string        `json:"pass_id,omitempty"`
	Success     bool          `json:"success"`
	Skipped     bool          `json:"skipped,omitempty"`
	SyncedCount int           `json:"synced_count"`
	FailedCount int           `json:"failed_count"`
	Error       error         `json:"-"`
	Stats       *stats.Report `json:"-"`
	Duration    time.Duration `json:"duration"`
}

// ErrorMessage returns the failure text or an empty string.
func (r Result) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// SyncState is the read model for presentation code.
type SyncState struct {
	State          State     `json:"state"`
	IsSyncing      bool      `json:"is_syncing"`
	Progress       int       `json:"progress"`
	Total          int       `json:"total"`
	Error          string    `json:"error,omitempty"`
	LastResult     *Result   `json:"last_result,omitempty"`
	LastFinishedAt time.Time `json:"last_finished_at,omitempty"`
}
