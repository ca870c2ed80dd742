package merge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldscan/internal/merge"
	"fieldscan/internal/remote"
)

func TestRecordsPendingDeleteHidesConfirmedRecord(t *testing.T) {
	snapshot := []remote.Record{{ID: "r1", OrderInRow: 0, Code: "A"}}
	overlay := merge.Overlay{
		Adds:    []remote.Record{{ID: "p1", OrderInRow: 1, Code: "B", Pending: true}},
		Deletes: map[string]struct{}{"r1": {}},
	}

	got := merge.Records(snapshot, overlay)

	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "B", got[0].Code)
	assert.True(t, got[0].Pending)
}

func TestRecordsSortsByOrderThenSequence(t *testing.T) {
	snapshot := []remote.Record{
		{ID: "r2", OrderInRow: 2, Code: "C"},
		{ID: "r0", OrderInRow: 0, Code: "A"},
	}
	overlay := merge.Overlay{Adds: []remote.Record{
		{ID: "p2", OrderInRow: 1, Code: "B2", LocalSequence: 7},
		{ID: "p1", OrderInRow: 1, Code: "B1", LocalSequence: 3},
		{ID: "p3", OrderInRow: 5, Code: "D", LocalSequence: 1},
	}}

	got := merge.Records(snapshot, overlay)

	ids := make([]string, 0, len(got))
	for _, rec := range got {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"r0", "p1", "p2", "r2", "p3"}, ids)
}

func TestRecordsTiesWithoutSequenceKeepInputOrder(t *testing.T) {
	snapshot := []remote.Record{
		{ID: "first", OrderInRow: 1},
		{ID: "second", OrderInRow: 1},
	}
	got := merge.Records(snapshot, merge.Overlay{})
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
}

func TestRecordsPendingAddReplacesCollidingSnapshotRecord(t *testing.T) {
	snapshot := []remote.Record{{ID: "m1", OrderInRow: 0, Code: "old"}}
	overlay := merge.Overlay{Adds: []remote.Record{{ID: "m1", OrderInRow: 0, Code: "new"}}}

	got := merge.Records(snapshot, overlay)

	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Code)
	assert.True(t, got[0].Pending, "the projection of the queued add wins")
}

func TestRecordsAppliesPendingUpdates(t *testing.T) {
	snapshot := []remote.Record{{ID: "r1", Code: "A"}, {ID: "r2", OrderInRow: 1, Code: "B"}}
	overlay := merge.Overlay{Updates: map[string]string{"r2": "B-fixed", "ghost": "X"}}

	got := merge.Records(snapshot, overlay)

	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Code)
	assert.Equal(t, "B-fixed", got[1].Code)
}

func TestRecordsDoesNotModifyInputs(t *testing.T) {
	lat := 10.0
	snapshot := []remote.Record{{ID: "r2", OrderInRow: 2, Code: "B", Latitude: &lat}, {ID: "r1", OrderInRow: 1, Code: "A"}}
	adds := []remote.Record{{ID: "p1", OrderInRow: 0, Code: "P"}}
	overlay := merge.Overlay{Adds: adds, Updates: map[string]string{"r2": "changed"}, Deletes: map[string]struct{}{"r1": {}}}

	got := merge.Records(snapshot, overlay)
	got[0].Code = "mutated"
	*got[1].Latitude = 99

	assert.Equal(t, "r2", snapshot[0].ID)
	assert.Equal(t, "B", snapshot[0].Code)
	assert.Equal(t, 10.0, lat)
	assert.False(t, adds[0].Pending)
	assert.Equal(t, "P", adds[0].Code)
	assert.Len(t, overlay.Updates, 1)
	assert.Len(t, overlay.Deletes, 1)
}

func TestRecordsEmptyInputs(t *testing.T) {
	got := merge.Records(nil, merge.Overlay{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.True(t, merge.Overlay{}.Empty())
}

func TestRecordsIgnoresConfirmedSequencesAtEqualPosition(t *testing.T) {
	snapshot := []remote.Record{
		{ID: "s3", OrderInRow: 1, LocalSequence: 3},
		{ID: "s0", OrderInRow: 1},
	}
	overlay := merge.Overlay{Adds: []remote.Record{{ID: "p1", OrderInRow: 1, LocalSequence: 1}}}

	got := merge.Records(snapshot, overlay)

	ids := make([]string, 0, len(got))
	for _, rec := range got {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"s3", "s0", "p1"}, ids)
}

func TestRecordsPendingOrderDoesNotDependOnInputOrder(t *testing.T) {
	adds := []remote.Record{
		{ID: "p-none", OrderInRow: 2},
		{ID: "p5", OrderInRow: 2, LocalSequence: 5},
		{ID: "p2", OrderInRow: 2, LocalSequence: 2},
	}
	want := []string{"c", "p2", "p5", "p-none"}
	snapshot := []remote.Record{{ID: "c", OrderInRow: 2, LocalSequence: 9}}

	for _, perm := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}} {
		ordered := make([]remote.Record, 0, len(adds))
		for _, i := range perm {
			ordered = append(ordered, adds[i])
		}
		got := merge.Records(snapshot, merge.Overlay{Adds: ordered})
		ids := make([]string, 0, len(got))
		for _, rec := range got {
			ids = append(ids, rec.ID)
		}
		assert.Equal(t, want, ids, "input permutation %v", perm)
	}
}
