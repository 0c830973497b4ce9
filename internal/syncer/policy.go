package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/alexjbarnes/chatsync/internal/codec"
	"github.com/alexjbarnes/chatsync/internal/remote"
)

// Conflict describes a remote snapshot that differs from the one this
// device last reconciled with.
type Conflict struct {
	Operation    remote.Operation
	LocalSyncID  string
	RemoteSyncID string
	LocalDirty   bool
	PublishedAt  time.Time

	// Summary is a short description of how far the two documents differ.
	Summary string
}

// Message returns the warning shown before an overwrite.
func (c Conflict) Message() string {
	if c.Operation == remote.OpPull {
		return fmt.Sprintf("The remote copy changed and this device has unsynced edits. "+
			"Pulling replaces local data and the unsynced edits will be lost (%s).", c.Summary)
	}

	return fmt.Sprintf("Another device published since this device last synced. "+
		"Pushing overwrites the remote copy (%s).", c.Summary)
}

// LockChoice is the recovery direction picked for an unrecognized lock.
type LockChoice int

const (
	// LockCancel deletes the marker and accepts the remote as it is.
	LockCancel LockChoice = iota
	LockForcePull
	LockForcePush
)

func (c LockChoice) String() string {
	switch c {
	case LockForcePull:
		return "force-pull"
	case LockForcePush:
		return "force-push"
	}

	return "cancel"
}

// Policy answers the questions a pipeline cannot decide on its own.
type Policy interface {
	// ResolveConflict returns true to overwrite the other side.
	ResolveConflict(ctx context.Context, c Conflict) bool

	// ResolveLock picks a recovery direction for a marker left by an
	// unknown writer.
	ResolveLock(ctx context.Context, m remote.LockMarker) LockChoice
}

// Reporter receives user-facing progress.
type Reporter interface {
	Progress(message string)
	MissingAssets(report codec.MissingReport)
}

// StaticPolicy answers every question the same way. The daemon uses
// the zero value, which declines conflicts and cancels unknown locks.
type StaticPolicy struct {
	Overwrite bool
	Lock      LockChoice
}

func (p StaticPolicy) ResolveConflict(context.Context, Conflict) bool {
	return p.Overwrite
}

func (p StaticPolicy) ResolveLock(context.Context, remote.LockMarker) LockChoice {
	return p.Lock
}

type nopReporter struct{}

func (nopReporter) Progress(string)                   {}
func (nopReporter) MissingAssets(codec.MissingReport) {}

type forceKey struct{}

// WithForce marks ctx so pipelines overwrite without consulting the
// Policy. Use it when the user already chose a direction.
func WithForce(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

func isForced(ctx context.Context) bool {
	forced, _ := ctx.Value(forceKey{}).(bool)
	return forced
}
