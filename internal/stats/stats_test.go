package stats_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/services"
	"fieldscan/internal/stats"
	"fieldscan/internal/testsupport"
)

func mutation(kind queue.Kind, user, ts string) queue.Mutation {
	return queue.Mutation{
		ID:   "m-" + ts,
		Kind: kind,
		Payload: queue.Payload{
			RowID:     "row-1",
			UserID:    user,
			Timestamp: ts,
		},
	}
}

func TestReconcileIncrementsAndRecomputes(t *testing.T) {
	fake := testsupport.NewFakeRemote()
	require.NoError(t, fake.PutDailyCount(context.Background(), "u1", "2024-05-01", 4))

	r := stats.New(fake, logging.NewNop())
	report := r.Reconcile(context.Background(), []queue.Mutation{
		mutation(queue.KindAdd, "u1", "2024-05-01T10:00:00.000Z"),
		mutation(queue.KindAdd, "u1", "2024-05-01T11:00:00.000Z"),
		mutation(queue.KindAdd, "u1", "2024-05-02T09:00:00.000Z"),
		mutation(queue.KindAdd, "u2", "2024-05-01T09:00:00.000Z"),
		mutation(queue.KindUpdate, "u1", "2024-05-01T12:00:00.000Z"),
	})

	require.NoError(t, report.Err())
	assert.Equal(t, 3, report.DaysIncremented)
	assert.Equal(t, 2, report.UsersRecomputed)

	count, ok := fake.Daily("u1", "2024-05-01")
	assert.True(t, ok)
	assert.Equal(t, 6, count)
	count, _ = fake.Daily("u1", "2024-05-02")
	assert.Equal(t, 1, count)
	assert.Equal(t, 7, fake.Total("u1"))
	assert.Equal(t, 1, fake.Total("u2"))
}

func TestReconcileDecrementsFloorAtZero(t *testing.T) {
	fake := testsupport.NewFakeRemote()
	ctx := context.Background()
	require.NoError(t, fake.PutDailyCount(ctx, "u1", "2024-05-01", 1))

	report := stats.New(fake, logging.NewNop()).Reconcile(ctx, []queue.Mutation{
		mutation(queue.KindDelete, "u1", "2024-05-01T10:00:00.000Z"),
		mutation(queue.KindDelete, "u1", "2024-05-01T10:05:00.000Z"),
		mutation(queue.KindDelete, "u1", "2024-06-01T10:05:00.000Z"),
	})

	require.NoError(t, report.Err())
	count, _ := fake.Daily("u1", "2024-05-01")
	assert.Equal(t, 0, count)
	_, exists := fake.Daily("u1", "2024-06-01")
	assert.False(t, exists, "decrement must not create a counter")
	assert.Equal(t, 0, fake.Total("u1"))
}

func TestReconcileSkipsMutationsWithoutUser(t *testing.T) {
	fake := testsupport.NewFakeRemote()
	report := stats.New(fake, logging.NewNop()).Reconcile(context.Background(), []queue.Mutation{
		mutation(queue.KindAdd, "", "2024-05-01T10:00:00.000Z"),
	})
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, fake.Calls())
}

func TestReconcileFailuresAreCollectedNotFatal(t *testing.T) {
	fake := testsupport.NewFakeRemote()
	fake.FailStats(nil)

	report := stats.New(fake, logging.NewNop()).Reconcile(context.Background(), []queue.Mutation{
		mutation(queue.KindAdd, "u1", "2024-05-01T10:00:00.000Z"),
		mutation(queue.KindDelete, "u2", "2024-05-01T10:00:00.000Z"),
	})

	err := report.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrStatsFailure))
	assert.True(t, testsupport.IsInjected(err))
	// One read failure per day group plus one recompute failure per user.
	assert.Len(t, report.Errors, 4)
	assert.Zero(t, report.UsersRecomputed)
}

func TestReconcileEmptyInputTouchesNothing(t *testing.T) {
	fake := testsupport.NewFakeRemote()
	report := stats.New(fake, logging.NewNop()).Reconcile(context.Background(), nil)
	assert.NoError(t, report.Err())
	assert.Empty(t, fake.Calls())
}
