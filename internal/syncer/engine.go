// Package syncer runs the push and pull pipelines that keep the local
// store and the remote store in step, and recovers from interrupted
// runs at startup.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alexjbarnes/chatsync/internal/assets"
	"github.com/alexjbarnes/chatsync/internal/codec"
	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/metrics"
	"github.com/alexjbarnes/chatsync/internal/remote"
	"github.com/alexjbarnes/chatsync/internal/store"
	"github.com/alexjbarnes/chatsync/internal/syncstate"
	"github.com/google/uuid"
)

// Options configures an Engine. Local, Remote, State and Logger are
// required.
type Options struct {
	Local    *store.Store
	Remote   remote.Store
	State    *syncstate.Manager
	Policy   Policy
	Reporter Reporter
	Hub      *Hub
	Logger   *slog.Logger
}

// Engine runs sync pipelines for one local store. At most one pipeline
// runs at a time; a second request while one is running is a no-op.
type Engine struct {
	local    *store.Store
	remote   remote.Store
	state    *syncstate.Manager
	policy   Policy
	reporter Reporter
	hub      *Hub
	hubID    int
	fetcher  *assets.Fetcher
	logger   *slog.Logger
	now      func() time.Time
}

func New(opts Options) *Engine {
	e := &Engine{
		local:    opts.Local,
		remote:   opts.Remote,
		state:    opts.State,
		policy:   opts.Policy,
		reporter: opts.Reporter,
		hub:      opts.Hub,
		logger:   opts.Logger,
		now:      time.Now,
	}

	if e.policy == nil {
		e.policy = StaticPolicy{}
	}

	if e.reporter == nil {
		e.reporter = nopReporter{}
	}

	e.fetcher = assets.NewFetcher(e.remote, e.logger)
	e.fetcher.OnFetched = func(_ string, size int, err error) {
		if err != nil || size == 0 {
			metrics.ObserveAssetFailure()
			return
		}

		metrics.ObserveAssets(metrics.DirectionDownload, 1, size)
	}

	return e
}

// State returns the engine's sync state.
func (e *Engine) State() *syncstate.Manager {
	return e.state
}

// Push publishes local state if it has unpublished changes.
func (e *Engine) Push(ctx context.Context) error {
	if !e.state.Dirty() && !isForced(ctx) {
		e.logger.Debug("push skipped, nothing to publish")
		return nil
	}

	return e.run(ctx, remote.OpPush, e.push)
}

// Pull replaces local state with the remote snapshot if it changed.
func (e *Engine) Pull(ctx context.Context) error {
	return e.run(ctx, remote.OpPull, e.pull)
}

// ForcePush publishes local state, overwriting the remote without
// asking.
func (e *Engine) ForcePush(ctx context.Context) error {
	if err := e.state.MarkDirty(); err != nil {
		return err
	}

	return e.Push(WithForce(ctx))
}

// ForcePull replaces local state with the remote snapshot without
// asking, discarding unsynced local edits.
func (e *Engine) ForcePull(ctx context.Context) error {
	return e.Pull(WithForce(ctx))
}

// Startup resumes a run interrupted by a crash, or pulls when the remote
// holds no lock marker.
func (e *Engine) Startup(ctx context.Context) error {
	handled, err := e.Recover(ctx)
	if errors.Is(err, apperrors.ErrMalformedLock) {
		return nil
	}

	if err != nil || handled {
		return err
	}

	return e.Pull(ctx)
}

// Recover looks for a lock marker left by an interrupted run and
// settles it before any other sync starts. handled is false when there
// was no marker. A cancelled unrecognized marker is deleted and reported
// as ErrMalformedLock.
func (e *Engine) Recover(ctx context.Context) (handled bool, err error) {
	if e.remote == nil {
		return false, apperrors.ErrNotConnected
	}

	e.state.SetConnected(true)

	marker, err := e.remote.CheckLockFile(ctx)
	if err != nil {
		err = apperrors.Remote("check lock", err)
		if serr := e.state.SetError(err.Error()); serr != nil {
			e.logger.Error("persisting last error", slog.String("error", serr.Error()))
		}

		return false, err
	}

	if marker == nil {
		return false, nil
	}

	if !marker.Valid() {
		choice := e.policy.ResolveLock(ctx, *marker)
		e.logger.Warn("unrecognized lock marker",
			slog.String("marker", marker.Raw),
			slog.String("choice", choice.String()),
		)

		switch choice {
		case LockForcePull:
			return true, e.ForcePull(ctx)
		case LockForcePush:
			return true, e.ForcePush(ctx)
		}

		if err := e.remote.DeleteLockFile(ctx); err != nil {
			return true, apperrors.Remote("delete lock", err)
		}

		return true, fmt.Errorf("lock marker %q removed: %w", marker.Raw, apperrors.ErrMalformedLock)
	}

	e.logger.Info("resuming interrupted sync",
		slog.String("operation", string(marker.Operation)),
		slog.String("device", marker.Device),
		slog.Time("started", marker.CreatedAt),
	)

	if marker.Operation == remote.OpPush {
		if err := e.state.MarkDirty(); err != nil {
			return true, err
		}

		return true, e.Push(ctx)
	}

	return true, e.Pull(ctx)
}

// run wraps one pipeline with the sync flag, lock marker, metrics and
// error bookkeeping.
func (e *Engine) run(ctx context.Context, op remote.Operation, pipeline func(context.Context) error) error {
	if e.remote == nil {
		return apperrors.ErrNotConnected
	}

	if !e.state.BeginSync(string(op)) {
		e.logger.Debug("sync already running", slog.String("operation", string(op)))
		return nil
	}

	start := time.Now()

	err := e.locked(ctx, op, pipeline)

	e.state.EndSync(err)
	metrics.ObserveOperation(string(op), metrics.Outcome(err), start)
	metrics.SetDirty(e.state.Dirty())

	switch {
	case err == nil:
		e.logger.Info("sync finished", slog.String("operation", string(op)), slog.Duration("took", time.Since(start)))
	case errors.Is(err, apperrors.ErrConflictDeclined):
		e.logger.Info("sync cancelled", slog.String("operation", string(op)), slog.String("reason", err.Error()))
	default:
		e.logger.Error("sync failed", slog.String("operation", string(op)), slog.String("error", err.Error()))
	}

	return err
}

func (e *Engine) locked(ctx context.Context, op remote.Operation, pipeline func(context.Context) error) error {
	if err := e.remote.UploadLockFile(ctx, op); err != nil {
		return apperrors.Remote("write lock", err)
	}

	defer func() {
		// The marker must go even when ctx was cancelled mid-run.
		if err := e.remote.DeleteLockFile(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("deleting lock marker", slog.String("error", err.Error()))
		}
	}()

	return pipeline(ctx)
}

func (e *Engine) push(ctx context.Context) error {
	e.progress("checking remote copy")

	remoteDoc, err := e.remote.DownloadMetadata(ctx)
	if err != nil {
		return apperrors.Remote("download metadata", err)
	}

	exp, err := codec.ExportStore(e.local)
	if err != nil {
		return fmt.Errorf("exporting local store: %w", err)
	}

	if remoteDoc != nil {
		remoteID := tokenOf(remoteDoc)
		if remoteID != e.state.LastSyncID() {
			if err := e.confirm(ctx, remote.OpPush, exp.Document, remoteDoc, remoteID); err != nil {
				return err
			}
		}
	}

	return e.publish(ctx, exp)
}

// publish uploads assets, removes orphans and writes the metadata last,
// so a crash never leaves remote metadata pointing at absent assets.
func (e *Engine) publish(ctx context.Context, exp *codec.Export) error {
	e.progress("reconciling assets")

	if err := e.remote.EnsureAssetsContainerExists(ctx); err != nil {
		return apperrors.Remote("prepare assets", err)
	}

	remoteIDs, err := e.remote.ListAssets(ctx)
	if err != nil {
		return apperrors.Remote("list assets", err)
	}

	plan := assets.PlanPush(assets.NewSet(exp.Required...), assets.NewSet(exp.Local...), assets.NewSet(remoteIDs...))

	var unavailable codec.MissingReport
	if len(plan.Unavailable) > 0 {
		unavailable = codec.ReportMissing(exp.Metadata, plan.Unavailable)
		e.logger.Warn("referenced assets have no payload on either side",
			slog.Int("count", len(plan.Unavailable)),
			slog.Any("assets", plan.Unavailable),
		)
		e.reporter.MissingAssets(unavailable)
	}

	if len(plan.Upload) > 0 {
		batch := make([]remote.Asset, 0, len(plan.Upload))
		size := 0

		for _, id := range plan.Upload {
			batch = append(batch, remote.Asset{ID: id, Data: exp.Assets[id]})
			size += len(exp.Assets[id])
		}

		err := e.remote.UploadAssetsInBatches(ctx, batch, func(done, total int) {
			e.progress(fmt.Sprintf("uploading assets %d/%d", done, total))
		})
		if err != nil {
			return apperrors.Remote("upload assets", err)
		}

		metrics.ObserveAssets(metrics.DirectionUpload, len(batch), size)
	}

	if len(plan.Delete) > 0 {
		e.progress(fmt.Sprintf("removing %d unused assets", len(plan.Delete)))

		if err := e.remote.DeleteAssets(ctx, plan.Delete); err != nil {
			return apperrors.Remote("delete assets", err)
		}

		metrics.ObserveAssets(metrics.DirectionDelete, len(plan.Delete), 0)
	}

	e.progress("publishing metadata")

	syncID := uuid.NewString()

	doc, err := codec.StampSyncID(exp.Document, syncID, e.now())
	if err != nil {
		return err
	}

	if err := e.remote.UploadMetadata(ctx, doc); err != nil {
		return apperrors.Remote("upload metadata", err)
	}

	if err := e.state.Commit(syncID); err != nil {
		return err
	}

	// Commit clears lastError, so the gap is recorded after it.
	if len(unavailable) > 0 {
		msg := fmt.Sprintf("published with %d assets unavailable on every device: %s",
			len(plan.Unavailable), strings.Join(unavailable.Entities(), ", "))
		if err := e.state.SetError(msg); err != nil {
			e.logger.Error("persisting last error", slog.String("error", err.Error()))
		}
	}

	e.announce(syncID)

	e.logger.Info("published snapshot",
		slog.String("sync_id", syncID),
		slog.Int("uploaded", len(plan.Upload)),
		slog.Int("deleted", len(plan.Delete)),
	)

	return nil
}

func (e *Engine) pull(ctx context.Context) error {
	e.progress("downloading remote copy")

	doc, err := e.remote.DownloadMetadata(ctx)
	if err != nil {
		return apperrors.Remote("download metadata", err)
	}

	if doc == nil {
		return e.bootstrap(ctx)
	}

	remoteID := tokenOf(doc)
	dirty := e.state.Dirty()

	if remoteID == e.state.LastSyncID() && !(dirty && isForced(ctx)) {
		e.logger.Debug("already up to date", slog.String("sync_id", remoteID))
		return nil
	}

	if dirty {
		exp, err := codec.ExportStore(e.local)
		if err != nil {
			return fmt.Errorf("exporting local store: %w", err)
		}

		if err := e.confirm(ctx, remote.OpPull, exp.Document, doc, remoteID); err != nil {
			return err
		}
	}

	meta, err := codec.Parse(doc)
	if err != nil {
		return err
	}

	local, err := codec.LocalAssets(e.local)
	if err != nil {
		return fmt.Errorf("reading local assets: %w", err)
	}

	plan := assets.PlanPull(assets.NewSet(meta.RequiredAssets()...), assets.KeysOf(local), nil)

	if len(plan.Download) > 0 {
		e.progress(fmt.Sprintf("downloading %d assets", len(plan.Download)))
	}

	fetched, missing, err := e.fetcher.Fetch(ctx, plan.Download)
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		e.logger.Warn("assets unavailable", slog.Int("count", len(missing)))
	}

	e.progress("importing")

	snap, err := codec.Import(doc, codec.MapResolver(local, fetched))
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

	if err := e.state.Commit(remoteID); err != nil {
		return err
	}

	e.announce(remoteID)

	e.logger.Info("imported snapshot",
		slog.String("sync_id", remoteID),
		slog.Int("downloaded", len(fetched)),
	)

	return nil
}

// bootstrap handles a remote with no metadata yet. A device holding data
// publishes it as the first snapshot; an empty one has nothing to do.
func (e *Engine) bootstrap(ctx context.Context) error {
	empty, err := e.local.IsEmpty()
	if err != nil {
		return err
	}

	if empty && !e.state.Dirty() {
		e.logger.Debug("remote and local both empty")
		return nil
	}

	e.logger.Info("remote has no snapshot yet, publishing local data")

	if err := e.state.ForceDirty(); err != nil {
		return err
	}

	if err := e.remote.UploadLockFile(ctx, remote.OpPush); err != nil {
		return apperrors.Remote("write lock", err)
	}

	exp, err := codec.ExportStore(e.local)
	if err != nil {
		return fmt.Errorf("exporting local store: %w", err)
	}

	return e.publish(ctx, exp)
}

// confirm asks the policy whether to overwrite the other side. It
// returns an error wrapping ErrConflictDeclined when the answer is no.
func (e *Engine) confirm(ctx context.Context, op remote.Operation, localDoc, remoteDoc []byte, remoteID string) error {
	c := Conflict{
		Operation:    op,
		LocalSyncID:  e.state.LastSyncID(),
		RemoteSyncID: remoteID,
		LocalDirty:   e.state.Dirty(),
		Summary:      diffSummary(localDoc, remoteDoc),
	}

	if meta, err := codec.Parse(remoteDoc); err == nil {
		c.PublishedAt = meta.PublishedAt
	}

	accepted := isForced(ctx)
	if !accepted {
		accepted = e.policy.ResolveConflict(ctx, c)
	}

	metrics.ObserveConflict(string(op), accepted)

	e.logger.Info("conflict detected",
		slog.String("operation", string(op)),
		slog.String("local_sync_id", c.LocalSyncID),
		slog.String("remote_sync_id", c.RemoteSyncID),
		slog.Bool("overwrite", accepted),
	)

	if !accepted {
		return fmt.Errorf("%s: %w", op, apperrors.ErrConflictDeclined)
	}

	return nil
}

func (e *Engine) progress(msg string) {
	e.state.SetPhase(msg)
	e.reporter.Progress(msg)
}

func (e *Engine) announce(syncID string) {
	if e.hub != nil {
		e.hub.publish(e.hubID, syncID)
	}
}
