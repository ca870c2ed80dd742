package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldscan/internal/logging"
	"fieldscan/internal/remote"
	"fieldscan/internal/remote/server"
	"fieldscan/internal/remote/sqlstore"
	"fieldscan/internal/services"
)

func newClient(t *testing.T) *remote.Client {
	t.Helper()
	store, err := sqlstore.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(server.New(store, logging.NewNop(), server.WithToken("tok")))
	t.Cleanup(srv.Close)
	return remote.NewClient(srv.URL, 5*time.Second, remote.WithToken("tok"), remote.WithLogger(logging.NewNop()))
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	require.NoError(t, client.Ping(ctx))

	lon := -0.12
	rec := remote.Record{ID: "m1", Code: "X1", RowID: "row/1", OrderInRow: 3, ScannedAt: "2026-03-01T10:00:00Z", UserID: "u1", Longitude: &lon, Pending: true}
	require.NoError(t, client.Insert(ctx, rec))

	err := client.Insert(ctx, rec)
	assert.ErrorIs(t, err, remote.ErrDuplicate)
	assert.True(t, errors.Is(err, services.ErrRemoteConflict))

	require.NoError(t, client.UpdateCode(ctx, "m1", "X9"))
	assert.ErrorIs(t, client.UpdateCode(ctx, "missing", "X9"), remote.ErrNotFound)

	records, err := client.RowRecords(ctx, "row/1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "X9", records[0].Code)
	assert.False(t, records[0].Pending)
	require.NotNil(t, records[0].Longitude)

	require.NoError(t, client.Delete(ctx, "m1"))
	assert.ErrorIs(t, client.Delete(ctx, "m1"), remote.ErrNotFound)
}

func TestClientCounters(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	count, exists, err := client.DailyCount(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, count)

	require.NoError(t, client.PutDailyCount(ctx, "u1", "2026-03-01", 4))
	count, exists, err = client.DailyCount(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 4, count)

	total, err := client.RecomputeUserTotal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestClientClassifiesServerFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream down"}`))
	}))
	t.Cleanup(srv.Close)

	client := remote.NewClient(srv.URL, time.Second)
	err := client.Insert(context.Background(), remote.Record{ID: "m1", RowID: "R"})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrRemoteFailure)
	assert.NotErrorIs(t, err, services.ErrRemoteConflict)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestClientRejectsWrongToken(t *testing.T) {
	store, err := sqlstore.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	srv := httptest.NewServer(server.New(store, logging.NewNop(), server.WithToken("tok")))
	t.Cleanup(srv.Close)

	client := remote.NewClient(srv.URL, time.Second, remote.WithToken("wrong"))
	assert.ErrorIs(t, client.Insert(context.Background(), remote.Record{ID: "m1", RowID: "R"}), services.ErrRemoteFailure)
}

func TestClientNetworkErrorIsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := remote.NewClient(url, 200*time.Millisecond)
	assert.ErrorIs(t, client.Ping(context.Background()), services.ErrRemoteFailure)
}

func TestClientTreatsBareNotFoundAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	client := remote.NewClient(srv.URL, time.Second)
	ctx := context.Background()

	for name, err := range map[string]error{
		"delete": client.Delete(ctx, "m1"),
		"update": client.UpdateCode(ctx, "m1", "X2"),
	} {
		assert.ErrorIs(t, err, services.ErrRemoteFailure, name)
		assert.NotErrorIs(t, err, remote.ErrNotFound, name)
		assert.NotErrorIs(t, err, services.ErrRemoteConflict, name)
	}
}

func TestClientTreatsUncodedConflictAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"edit lock held"}`))
	}))
	t.Cleanup(srv.Close)

	err := remote.NewClient(srv.URL, time.Second).Insert(context.Background(), remote.Record{ID: "m1", RowID: "R"})
	assert.ErrorIs(t, err, services.ErrRemoteFailure)
	assert.NotErrorIs(t, err, remote.ErrDuplicate)
}

func TestClientMapsRecordLevelCodes(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	require.NoError(t, client.Insert(ctx, remote.Record{ID: "m1", Code: "X1", RowID: "R"}))
	assert.ErrorIs(t, client.Insert(ctx, remote.Record{ID: "m1", Code: "X1", RowID: "R"}), remote.ErrDuplicate)
	assert.ErrorIs(t, client.Delete(ctx, "missing"), remote.ErrNotFound)
	assert.ErrorIs(t, client.UpdateCode(ctx, "missing", "X2"), remote.ErrNotFound)
}
