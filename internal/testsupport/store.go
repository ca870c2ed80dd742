package testsupport

import (
	"context"
	"testing"
	"time"

	"fieldscan/internal/config"
	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/scans"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewScans builds a scans.Service over store with a fixed clock.
func NewScans(store *queue.Store, now time.Time) *scans.Service {
	return scans.New(store, func() time.Time { return now }, logging.NewNop())
}

// QueueAdd queues an ADD through svc and fails the test on error.
func QueueAdd(t testing.TB, svc *scans.Service, rowID, code string, order int) *queue.Mutation {
	t.Helper()

	m, err := svc.QueueAdd(context.Background(), scans.AddRequest{Code: code, RowID: rowID, OrderInRow: order, UserID: "tester"})
	if err != nil {
		t.Fatalf("QueueAdd(%s, %s): %v", rowID, code, err)
	}
	return m
}
