package syncer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/chatsync/internal/codec"
	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/store"
)

// Export encodes the local store without touching the remote.
func (e *Engine) Export() (*codec.Export, error) {
	exp, err := codec.ExportStore(e.local)
	if err != nil {
		return nil, fmt.Errorf("exporting local store: %w", err)
	}

	return exp, nil
}

// Restore replaces the local store with a previously exported document.
// Payloads are taken from the local store and extra, the result counts
// as a local edit and is published by the next push. Sync bookkeeping
// in the local settings survives.
func (e *Engine) Restore(doc []byte, extra map[string][]byte) error {
	if !e.state.BeginSync("restore") {
		return apperrors.ErrSyncInProgress
	}

	err := e.restore(doc, extra)
	e.state.EndSync(err)

	return err
}

func (e *Engine) restore(doc []byte, extra map[string][]byte) error {
	local, err := codec.LocalAssets(e.local)
	if err != nil {
		return fmt.Errorf("reading local assets: %w", err)
	}

	snap, err := codec.Import(codec.Unstamped(doc), codec.MapResolver(local, extra))
	if err != nil {
		var missingErr *codec.MissingAssetsError
		if errors.As(err, &missingErr) {
			e.reporter.MissingAssets(missingErr.Report)
		}

		return err
	}

	if err := e.replaceLocal(snap); err != nil {
		return err
	}

	if err := e.state.MarkDirty(); err != nil {
		return err
	}

	e.logger.Info("restored local store from document")

	return nil
}

// replaceLocal swaps snap in as the whole local store, carrying over the
// reserved sync settings.
func (e *Engine) replaceLocal(snap store.Snapshot) error {
	reserved, err := e.local.ReservedSettings()
	if err != nil {
		return err
	}

	if snap[store.Settings] == nil {
		snap[store.Settings] = make(map[string][]byte, len(reserved))
	}

	for k, v := range reserved {
		snap[store.Settings][k] = v
	}

	if err := e.local.AtomicReplace(snap); err != nil {
		return fmt.Errorf("replacing local store: %w", err)
	}

	e.logger.Debug("local store replaced", slog.Int("reserved_settings", len(reserved)))

	return nil
}
