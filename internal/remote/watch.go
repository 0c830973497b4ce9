package remote

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the remote root for metadata publications and calls fn
// once per burst of events, after debounce has passed without a new
// one. Publications by this process are reported too; callers compare
// sync tokens to skip their own. Blocks until ctx is cancelled.
func (f *FS) Watch(ctx context.Context, debounce time.Duration, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.root); err != nil {
		return fmt.Errorf("watching remote root: %w", err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if !isMetadataEvent(event) {
				continue
			}

			f.logger.Debug("remote metadata changed", slog.String("op", event.Op.String()))
			timer.Reset(debounce)

		case <-timer.C:
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			// Non-fatal: the next event still arrives.
			f.logger.Warn("remote watcher error", slog.String("error", err.Error()))
		}
	}
}

// isMetadataEvent reports whether event replaced the metadata document.
// Writes land through a rename, so Create covers the common case.
func isMetadataEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != metadataFile {
		return false
	}

	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}
