// Package merge combines a row's last known remote snapshot with its pending
// queue overlay into the record list a field worker should see.
package merge

import (
	"math"
	"sort"

	"fieldscan/internal/remote"
)

// Overlay holds a row's not-yet-synced changes.
type Overlay struct {
	// Adds are pending ADD mutations projected to records (Pending set).
	Adds []remote.Record
	// Deletes is the set of record ids pending deletion.
	Deletes map[string]struct{}
	// Updates maps record ids to their pending new code.
	Updates map[string]string
}

// Empty reports whether the overlay changes nothing.
func (o Overlay) Empty() bool {
	return len(o.Adds) == 0 && len(o.Deletes) == 0 && len(o.Updates) == 0
}

// Records merges snapshot with overlay. Snapshot records whose id collides with
// a pending add are dropped, the remainder is sorted by position, pending
// deletes are filtered out and pending updates replace codes. At equal
// positions confirmed records keep their snapshot order and come before
// pending ones, which are ordered by local sequence. Inputs are never modified; the
// returned slice is freshly allocated.
func Records(snapshot []remote.Record, overlay Overlay) []remote.Record {
	pendingIDs := make(map[string]struct{}, len(overlay.Adds))
	for _, add := range overlay.Adds {
		pendingIDs[add.ID] = struct{}{}
	}

	combined := make([]remote.Record, 0, len(snapshot)+len(overlay.Adds))
	for _, rec := range snapshot {
		if _, collides := pendingIDs[rec.ID]; collides {
			continue
		}
		combined = append(combined, rec)
	}
	for _, add := range overlay.Adds {
		add.Pending = true
		combined = append(combined, add)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.OrderInRow != b.OrderInRow {
			return a.OrderInRow < b.OrderInRow
		}
		if a.Pending != b.Pending {
			return !a.Pending
		}
		if !a.Pending {
			return false
		}
		return pendingRank(a) < pendingRank(b)
	})

	out := combined[:0]
	for _, rec := range combined {
		if _, deleted := overlay.Deletes[rec.ID]; deleted {
			continue
		}
		if code, updated := overlay.Updates[rec.ID]; updated {
			rec.Code = code
		}
		out = append(out, copyCoordinates(rec))
	}
	return out
}

// pendingRank orders pending records by local sequence. Stored sequences
// restart after every drained sync, so confirmed records are never ranked by
// them. A pending record without one sorts last.
func pendingRank(rec remote.Record) int64 {
	if rec.LocalSequence > 0 {
		return rec.LocalSequence
	}
	return math.MaxInt64
}

// copyCoordinates detaches the optional coordinate pointers from the inputs.
func copyCoordinates(rec remote.Record) remote.Record {
	if rec.Latitude != nil {
		v := *rec.Latitude
		rec.Latitude = &v
	}
	if rec.Longitude != nil {
		v := *rec.Longitude
		rec.Longitude = &v
	}
	return rec
}
