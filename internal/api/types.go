package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queued mutation in a transport-friendly format.
type QueueItem struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	RowID         string `json:"rowId"`
	Code          string `json:"code,omitempty"`
	RecordID      string `json:"recordId,omitempty"`
	OrderInRow    int    `json:"orderInRow"`
	UserID        string `json:"userId,omitempty"`
	Timestamp     string `json:"timestamp"`
	LocalSequence int64  `json:"localSequence"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// SyncStatus mirrors the sync manager's read model.
type SyncStatus struct {
	State          string        `json:"state"`
	IsSyncing      bool          `json:"isSyncing"`
	Progress       int           `json:"progress"`
	Total          int           `json:"total"`
	Error          string        `json:"error,omitempty"`
	LastResult     *SyncResponse `json:"lastResult,omitempty"`
	LastFinishedAt string        `json:"lastFinishedAt,omitempty"`
}

// SyncResponse reports the outcome of one sync pass.
type SyncResponse struct {
	PassID      string   `json:"passId,omitempty"`
	Success     bool     `json:"success"`
	Skipped     bool     `json:"skipped,omitempty"`
	SyncedCount int      `json:"syncedCount"`
	FailedCount int      `json:"failedCount"`
	Error       string   `json:"error,omitempty"`
	DurationMS  int64    `json:"durationMs"`
	StatsErrors []string `json:"statsErrors,omitempty"`
}

// AgentStatus aggregates agent runtime information for API consumers.
type AgentStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	QueueDBPath   string         `json:"queueDbPath"`
	LockFilePath  string         `json:"lockFilePath"`
	RemoteURL     string         `json:"remoteUrl"`
	Online        bool           `json:"online"`
	LastOnlineAt  string         `json:"lastOnlineAt,omitempty"`
	LastOfflineAt string         `json:"lastOfflineAt,omitempty"`
	Pending       int            `json:"pending"`
	CanSync       bool           `json:"canSync"`
	AutoSync      bool           `json:"autoSync"`
	QueueStats    map[string]int `json:"queueStats"`
	Sync          SyncStatus     `json:"sync"`
}

// Record is a display record for a row.
type Record struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	RowID         string   `json:"rowId"`
	OrderInRow    int      `json:"orderInRow"`
	ScannedAt     string   `json:"scannedAt,omitempty"`
	UserID        string   `json:"userId,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	LocalSequence int64    `json:"localSequence,omitempty"`
	Pending       bool     `json:"pending"`
}

// MergedRow is the display list for one row.
type MergedRow struct {
	RowID string `json:"rowId"`
	// SnapshotStale is set when the remote could not be read and the last
	// cached snapshot (possibly none) was used.
	SnapshotStale bool     `json:"snapshotStale"`
	Records       []Record `json:"records"`
}

// Event is pushed to websocket subscribers.
type Event struct {
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	Online    bool          `json:"online"`
	Sync      SyncStatus    `json:"sync"`
	PassID    string        `json:"passId,omitempty"`
	Done      int           `json:"done,omitempty"`
	Total     int           `json:"total,omitempty"`
	Result    *SyncResponse `json:"result,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScanRequest queues a newly scanned code through the agent.
type ScanRequest struct {
	RowID      string   `json:"rowId"`
	Code       string   `json:"code"`
	OrderInRow int      `json:"orderInRow"`
	UserID     string   `json:"userId,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}
