package remote

import (
	"context"
	"fmt"

	"fieldscan/internal/services"
)

var (
	// ErrDuplicate reports an insert whose id already exists.
	ErrDuplicate = fmt.Errorf("%w: duplicate record", services.ErrRemoteConflict)
	// ErrNotFound reports an update or delete of a record that does not exist.
	ErrNotFound = fmt.Errorf("%w: record not found", services.ErrRemoteConflict)
)

// Record is a barcode scan as seen by presentation code. Confirmed records come
// from the remote store; pending records are projections of queued ADD
// mutations and are never persisted as confirmed.
type Record struct {
	ID            string   `json:"id"`
	Code          string   `json:"code"`
	RowID         string   `json:"row_id"`
	OrderInRow    int      `json:"order_in_row"`
	ScannedAt     string   `json:"scanned_at"`
	UserID        string   `json:"user_id,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	LocalSequence int64    `json:"local_sequence,omitempty"`
	Pending       bool     `json:"pending"`
}

// Writer is the write side used when replaying queued mutations.
type Writer interface {
	Insert(ctx context.Context, record Record) error
	Delete(ctx context.Context, id string) error
	UpdateCode(ctx context.Context, id, code string) error
}

// Counters is the aggregate statistics side of the system of record.
type Counters interface {
	// DailyCount returns the scan counter for a user on a date (YYYY-MM-DD) and
	// whether the counter row exists.
	DailyCount(ctx context.Context, userID, date string) (int, bool, error)
	PutDailyCount(ctx context.Context, userID, date string, count int) error
	// RecomputeUserTotal rebuilds a user's all-time total from the daily
	// counters and returns it. Safe to call repeatedly.
	RecomputeUserTotal(ctx context.Context, userID string) (int, error)
}

// Store is the full system-of-record contract.
type Store interface {
	Writer
	Counters
	RowRecords(ctx context.Context, rowID string) ([]Record, error)
	Ping(ctx context.Context) error
}
