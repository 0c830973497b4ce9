package syncer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/chatsync/internal/codec"
	"github.com/alexjbarnes/chatsync/internal/models"
	"github.com/alexjbarnes/chatsync/internal/remote"
	"github.com/alexjbarnes/chatsync/internal/store"
	"github.com/alexjbarnes/chatsync/internal/syncstate"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testPolicy struct {
	mu        sync.Mutex
	overwrite bool
	lock      LockChoice
	conflicts []Conflict
	locks     []remote.LockMarker
}

func (p *testPolicy) ResolveConflict(_ context.Context, c Conflict) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conflicts = append(p.conflicts, c)
	return p.overwrite
}

func (p *testPolicy) ResolveLock(_ context.Context, m remote.LockMarker) LockChoice {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locks = append(p.locks, m)
	return p.lock
}

type testReporter struct {
	mu       sync.Mutex
	progress []string
	missing  []codec.MissingReport
}

func (r *testReporter) Progress(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, msg)
}

func (r *testReporter) MissingAssets(report codec.MissingReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missing = append(r.missing, report)
}

// device is one installation: its own local store and sync state,
// sharing a remote directory with other devices.
type device struct {
	local    *store.Store
	state    *syncstate.Manager
	fs       *remote.FS
	engine   *Engine
	policy   *testPolicy
	reporter *testReporter
}

func newDevice(t *testing.T, root, name string) *device {
	t.Helper()

	local, err := store.OpenAt(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	fs, err := remote.NewFS(remote.FSConfig{Root: root, Device: name, BatchSize: 2}, quietLogger)
	require.NoError(t, err)

	return newDeviceWith(t, local, fs, nil)
}

func newDeviceWith(t *testing.T, local *store.Store, rs remote.Store, hub *Hub) *device {
	t.Helper()

	state, err := syncstate.Load(local, quietLogger)
	require.NoError(t, err)

	d := &device{local: local, state: state, policy: &testPolicy{}, reporter: &testReporter{}}
	d.fs, _ = rs.(*remote.FS)
	d.engine = New(Options{
		Local:    local,
		Remote:   rs,
		State:    state,
		Policy:   d.policy,
		Reporter: d.reporter,
		Hub:      hub,
		Logger:   quietLogger,
	})
	state.SetConnected(true)

	return d
}

// edit writes a chat and marks the state dirty, as the app would.
func (d *device) edit(t *testing.T, c models.Chat) {
	t.Helper()
	require.NoError(t, d.local.Chats().Put(c))
	require.NoError(t, d.state.MarkDirty())
}

func (d *device) chat(t *testing.T, id string) *models.Chat {
	t.Helper()
	c, err := d.local.Chats().Get(id)
	require.NoError(t, err)
	return c
}

// entities returns every entity collection, for before/after comparison.
func (d *device) entities(t *testing.T) store.Snapshot {
	t.Helper()
	snap, err := d.local.Dump()
	require.NoError(t, err)
	delete(snap, store.Settings)
	return snap
}

func chatWithImage(id, title, imageID string) models.Chat {
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return models.Chat{
		ID:        id,
		Title:     title,
		CreatedAt: at,
		UpdatedAt: at,
		Messages: []models.Message{
			{Role: "user", Content: "draw a cat"},
			{Role: "assistant", Content: "here", ImageIDs: []string{imageID}},
		},
	}
}
