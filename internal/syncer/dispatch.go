package syncer

import (
	"context"
	"errors"
	"fmt"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/remote"
	"fieldscan/internal/scans"
	"fieldscan/internal/services"
)

// dispatch replays one mutation. Conflicts that mean the remote store already
// reflects the change count as success.
func (m *Manager) dispatch(ctx context.Context, mutation *queue.Mutation) error {
	if m.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
	}

	var (
		err      error
		tolerate error
	)
	switch mutation.Kind {
	case queue.KindAdd:
		record := scans.PendingRecord(mutation)
		record.Pending = false
		err = m.remote.Insert(ctx, record)
		tolerate = remote.ErrDuplicate
	case queue.KindDelete:
		err = m.remote.Delete(ctx, mutation.TargetID())
		tolerate = remote.ErrNotFound
	case queue.KindUpdate:
		err = m.remote.UpdateCode(ctx, mutation.TargetID(), mutation.Payload.NewCode)
		tolerate = remote.ErrNotFound
	default:
		return services.Wrap(services.ErrValidation, "syncer", "dispatch", fmt.Sprintf("unknown kind %q", mutation.Kind), nil)
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, tolerate) {
		attrs := append(logging.Mutation(string(mutation.Kind), ""), logging.Error(err))
		logging.WithContext(ctx, m.logger).Debug("remote already reflects mutation", logging.Args(attrs...)...)
		return nil
	}
	if errors.Is(err, services.ErrRemoteFailure) {
		return err
	}
	return services.Wrap(services.ErrRemoteFailure, "syncer", string(mutation.Kind), mutation.ID, err)
}
