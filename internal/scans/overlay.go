package scans

import (
	"context"

	"fieldscan/internal/merge"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
)

// PendingAdds projects the row's queued ADD mutations to pending records.
func (s *Service) PendingAdds(ctx context.Context, rowID string) ([]remote.Record, error) {
	overlay, err := s.Overlay(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return overlay.Adds, nil
}

// PendingDeletes returns the ids of the row's records awaiting deletion.
func (s *Service) PendingDeletes(ctx context.Context, rowID string) (map[string]struct{}, error) {
	overlay, err := s.Overlay(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return overlay.Deletes, nil
}

// PendingUpdates maps the row's record ids to their pending new code.
func (s *Service) PendingUpdates(ctx context.Context, rowID string) (map[string]string, error) {
	overlay, err := s.Overlay(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return overlay.Updates, nil
}

// Overlay collects every unsynced change for a row in replay order. Later
// updates of the same record win.
func (s *Service) Overlay(ctx context.Context, rowID string) (merge.Overlay, error) {
	mutations, err := s.queue.ListForRow(ctx, rowID)
	if err != nil {
		return merge.Overlay{}, err
	}
	overlay := merge.Overlay{
		Adds:    make([]remote.Record, 0),
		Deletes: make(map[string]struct{}),
		Updates: make(map[string]string),
	}
	for _, m := range mutations {
		switch m.Kind {
		case queue.KindAdd:
			overlay.Adds = append(overlay.Adds, PendingRecord(m))
		case queue.KindDelete:
			overlay.Deletes[m.Payload.RecordID] = struct{}{}
		case queue.KindUpdate:
			overlay.Updates[m.Payload.RecordID] = m.Payload.NewCode
		}
	}
	return overlay, nil
}

// MergedRecordsForRow returns the display list for a row: snapshot plus
// pending changes, without contacting the network.
func (s *Service) MergedRecordsForRow(ctx context.Context, rowID string, snapshot []remote.Record) ([]remote.Record, error) {
	overlay, err := s.Overlay(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return merge.Records(snapshot, overlay), nil
}

// PendingRecord projects an ADD mutation to the record it will become.
func PendingRecord(m *queue.Mutation) remote.Record {
	return remote.Record{
		ID:            m.ID,
		Code:          m.Payload.Code,
		RowID:         m.Payload.RowID,
		OrderInRow:    m.Payload.OrderInRow,
		ScannedAt:     m.Payload.Timestamp,
		UserID:        m.Payload.UserID,
		Latitude:      copyFloat(m.Payload.Latitude),
		Longitude:     copyFloat(m.Payload.Longitude),
		LocalSequence: m.Payload.LocalSequence,
		Pending:       true,
	}
}
