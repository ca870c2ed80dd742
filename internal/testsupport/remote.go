package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fieldscan/internal/remote"
	"fieldscan/internal/services"
)

// ErrInjected is the default failure returned by FakeRemote hooks.
var ErrInjected = services.Wrap(services.ErrRemoteFailure, "fake-remote", "", "injected failure", nil)

// FakeRemote is an in-memory remote.Store with injectable failures.
type FakeRemote struct {
	mu       sync.Mutex
	records  map[string]remote.Record
	daily    map[string]int
	totals   map[string]int
	calls    []string
	offline  bool
	failOn   map[string]error
	statsErr error
	// OnCall runs before every operation; returning an error fails it.
	OnCall func(op, id string) error
}

var _ remote.Store = (*FakeRemote)(nil)

// NewFakeRemote returns an empty fake.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		records: make(map[string]remote.Record),
		daily:   make(map[string]int),
		totals:  make(map[string]int),
		failOn:  make(map[string]error),
	}
}

// FailOn makes every write targeting id fail with err (ErrInjected when nil).
func (f *FakeRemote) FailOn(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.failOn[id] = err
}

// ClearFailures removes every injected failure.
func (f *FakeRemote) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = make(map[string]error)
	f.statsErr = nil
}

// FailStats makes every counter operation fail with err.
func (f *FakeRemote) FailStats(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.statsErr = err
}

// SetOffline makes every operation fail as if the network were down.
func (f *FakeRemote) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Seed stores records directly, bypassing hooks.
func (f *FakeRemote) Seed(records ...remote.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		rec.Pending = false
		f.records[rec.ID] = rec
	}
}

// Record returns a stored record.
func (f *FakeRemote) Record(id string) (remote.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (f *FakeRemote) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Calls returns the operations performed so far as "op:id" strings.
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Total returns the last recomputed total for a user.
func (f *FakeRemote) Total(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[userID]
}

func (f *FakeRemote) enter(op, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+id)
	offline := f.offline
	injected := f.failOn[id]
	hook := f.OnCall
	f.mu.Unlock()

	if offline {
		return services.Wrap(services.ErrRemoteFailure, "fake-remote", op, "network unreachable", nil)
	}
	if hook != nil {
		if err := hook(op, id); err != nil {
			return err
		}
	}
	if injected != nil && op != "ping" {
		return injected
	}
	return nil
}

func (f *FakeRemote) Insert(ctx context.Context, record remote.Record) error {
	if err := f.enter("insert", record.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrRemoteFailure, "fake-remote", "insert", "", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[record.ID]; exists {
		return fmt.Errorf("insert %s: %w", record.ID, remote.ErrDuplicate)
	}
	record.Pending = false
	f.records[record.ID] = record
	return nil
}

func (f *FakeRemote) Delete(ctx context.Context, id string) error {
	if err := f.enter("delete", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[id]; !exists {
		return fmt.Errorf("delete %s: %w", id, remote.ErrNotFound)
	}
	delete(f.records, id)
	return nil
}

func (f *FakeRemote) UpdateCode(ctx context.Context, id, code string) error {
	if err := f.enter("update", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, exists := f.records[id]
	if !exists {
		return fmt.Errorf("update %s: %w", id, remote.ErrNotFound)
	}
	rec.Code = code
	f.records[id] = rec
	return nil
}

func (f *FakeRemote) RowRecords(ctx context.Context, rowID string) ([]remote.Record, error) {
	if err := f.enter("row", rowID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Record, 0)
	for _, rec := range f.records {
		if rec.RowID == rowID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderInRow != out[j].OrderInRow {
			return out[i].OrderInRow < out[j].OrderInRow
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *FakeRemote) statsFailure(op, key string) error {
	if err := f.enter(op, key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsErr
}

func (f *FakeRemote) DailyCount(ctx context.Context, userID, date string) (int, bool, error) {
	if err := f.statsFailure("daily", userID+"/"+date); err != nil {
		return 0, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.daily[userID+"/"+date]
	return count, ok, nil
}

func (f *FakeRemote) PutDailyCount(ctx context.Context, userID, date string, count int) error {
	if err := f.statsFailure("put-daily", userID+"/"+date); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily[userID+"/"+date] = count
	return nil
}

// Daily returns a stored per-day counter.
func (f *FakeRemote) Daily(userID, date string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.daily[userID+"/"+date]
	return count, ok
}

func (f *FakeRemote) RecomputeUserTotal(ctx context.Context, userID string) (int, error) {
	if err := f.statsFailure("recompute", userID); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	prefix := userID + "/"
	for key, count := range f.daily {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			total += count
		}
	}
	f.totals[userID] = total
	return total, nil
}

func (f *FakeRemote) Ping(ctx context.Context) error {
	return f.enter("ping", "")
}

// IsInjected reports whether err came from an injected failure.
func IsInjected(err error) bool {
	return errors.Is(err, ErrInjected)
}
