package syncer

import (
	"context"
	"log/slog"
	"time"
)

// RemoteWatcher reports changes to the remote metadata.
type RemoteWatcher interface {
	Watch(ctx context.Context, debounce time.Duration, fn func()) error
}

// WatchRemote pulls whenever another writer publishes, until ctx is
// done. Pull failures are logged by the pipeline and do not stop the
// watch.
func (e *Engine) WatchRemote(ctx context.Context, w RemoteWatcher, debounce time.Duration) error {
	return w.Watch(ctx, debounce, func() {
		e.logger.Debug("remote metadata changed")
		_ = e.Pull(ctx)
	})
}

// ListenSiblings adopts sync tokens committed by other engines on the
// same Hub. stop unsubscribes.
func (e *Engine) ListenSiblings() (stop func()) {
	if e.hub == nil {
		return func() {}
	}

	e.hubID = e.hub.join(func(syncID string) {
		if err := e.state.AdoptSyncID(syncID); err != nil {
			e.logger.Warn("adopting sibling sync id", slog.String("error", err.Error()))
		}
	})

	return func() { e.hub.leave(e.hubID) }
}
