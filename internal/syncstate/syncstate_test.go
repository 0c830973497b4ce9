package syncstate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	s, err := store.OpenAt(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m, err := Load(s, quietLogger)
	require.NoError(t, err)
	m.SetConnected(true)
	return m, dbPath
}

func reload(t *testing.T, m *Manager, dbPath string) *Manager {
	t.Helper()
	require.NoError(t, m.kv.(*store.Store).Close())

	s, err := store.OpenAt(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m2, err := Load(s, quietLogger)
	require.NoError(t, err)
	m2.SetConnected(true)
	return m2
}

type failingKV struct{}

func (failingKV) Setting(string) ([]byte, error)       { return nil, nil }
func (failingKV) PutSettings(map[string][]byte) error { return errors.New("disk full") }

// --- Status ---

func TestStatus_Fresh(t *testing.T) {
	m, _ := testManager(t)
	st, detail := m.Status()
	assert.Equal(t, StatusIdle, st)
	assert.Empty(t, detail)
}

func TestStatus_NotConnectedWins(t *testing.T) {
	m, _ := testManager(t)
	require.NoError(t, m.MarkDirty())
	m.SetConnected(false)

	st, _ := m.Status()
	assert.Equal(t, StatusNotConnected, st)
}

func TestStatus_Precedence(t *testing.T) {
	m, _ := testManager(t)

	require.NoError(t, m.MarkDirty())
	st, _ := m.Status()
	assert.Equal(t, StatusDirty, st)

	require.NoError(t, m.SetError("boom"))
	st, detail := m.Status()
	assert.Equal(t, StatusError, st)
	assert.Equal(t, "boom", detail)

	require.True(t, m.BeginSync("push"))
	m.SetPhase("uploading assets")
	st, detail = m.Status()
	assert.Equal(t, StatusSyncing, st)
	assert.Equal(t, "uploading assets", detail)
	assert.Equal(t, "push", m.Snapshot().Operation)
}

// --- BeginSync / EndSync ---

func TestBeginSync_Exclusive(t *testing.T) {
	m, _ := testManager(t)
	require.True(t, m.BeginSync("pull"))
	assert.False(t, m.BeginSync("push"))

	m.EndSync(nil)
	assert.True(t, m.BeginSync("push"))
}

func TestEndSync_RecordsError(t *testing.T) {
	m, _ := testManager(t)
	require.True(t, m.BeginSync("push"))
	m.EndSync(errors.New("network down"))

	st := m.Snapshot()
	assert.Equal(t, StatusError, st.Status)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "network down", st.LastError.Message)
	assert.False(t, st.LastError.Timestamp.IsZero())
}

func TestEndSync_DeclinedConflictIsNotAnError(t *testing.T) {
	m, _ := testManager(t)
	require.True(t, m.BeginSync("push"))
	m.EndSync(fmt.Errorf("push: %w", apperrors.ErrConflictDeclined))

	assert.Nil(t, m.Snapshot().LastError)
}

// --- Commit ---

func TestCommit_ClearsDirtyAndError(t *testing.T) {
	m, _ := testManager(t)
	require.NoError(t, m.MarkDirty())
	require.NoError(t, m.SetError("old"))

	require.True(t, m.BeginSync("push"))
	require.NoError(t, m.Commit("tok-1"))
	m.EndSync(nil)

	st := m.Snapshot()
	assert.Equal(t, StatusIdle, st.Status)
	assert.False(t, st.Dirty)
	assert.Nil(t, st.LastError)
	assert.Equal(t, "tok-1", st.LastSyncID)
	assert.False(t, st.LastSyncAt.IsZero())
}

func TestCommit_KeepsDirtyWhenChangedDuringSync(t *testing.T) {
	m, _ := testManager(t)
	require.NoError(t, m.MarkDirty())

	require.True(t, m.BeginSync("push"))
	require.NoError(t, m.MarkDirty())
	require.NoError(t, m.Commit("tok-1"))
	m.EndSync(nil)

	assert.True(t, m.Dirty())
	assert.Equal(t, "tok-1", m.LastSyncID())
}

func TestForceDirty_ClearedByCommit(t *testing.T) {
	m, _ := testManager(t)
	require.True(t, m.BeginSync("pull"))
	require.NoError(t, m.ForceDirty())
	assert.True(t, m.Dirty())

	require.NoError(t, m.Commit("tok"))
	m.EndSync(nil)
	assert.False(t, m.Dirty())
}

func TestCommit_PersistFailureLeavesStateUnchanged(t *testing.T) {
	m, err := Load(failingKV{}, quietLogger)
	require.NoError(t, err)

	require.True(t, m.BeginSync("push"))
	assert.Error(t, m.Commit("tok"))
	assert.Empty(t, m.LastSyncID())
	assert.Error(t, m.MarkDirty())
	assert.False(t, m.Dirty())
}

// --- Persistence ---

func TestPersistence_SurvivesReopen(t *testing.T) {
	m, dbPath := testManager(t)
	m.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }

	require.True(t, m.BeginSync("push"))
	require.NoError(t, m.Commit("tok-7"))
	m.EndSync(nil)
	require.NoError(t, m.MarkDirty())
	require.NoError(t, m.SetError("remote unreachable"))

	m2 := reload(t, m, dbPath)
	st := m2.Snapshot()
	assert.True(t, st.Dirty)
	assert.Equal(t, "tok-7", st.LastSyncID)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), st.LastSyncAt)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "remote unreachable", st.LastError.Message)
}

func TestPersistence_ClearErrorSurvivesReopen(t *testing.T) {
	m, dbPath := testManager(t)
	require.NoError(t, m.SetError("x"))
	require.NoError(t, m.ClearError())

	m2 := reload(t, m, dbPath)
	assert.Nil(t, m2.Snapshot().LastError)
}

func TestLoad_BareTokenFallback(t *testing.T) {
	s, err := store.OpenAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.PutSetting(store.KeyLastSyncID, []byte("plain-token")))

	m, err := Load(s, quietLogger)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", m.LastSyncID())
}

// --- AdoptSyncID ---

func TestAdoptSyncID_LeavesDirty(t *testing.T) {
	m, _ := testManager(t)
	require.NoError(t, m.MarkDirty())
	require.NoError(t, m.AdoptSyncID("sibling-tok"))

	assert.Equal(t, "sibling-tok", m.LastSyncID())
	assert.True(t, m.Dirty())
}

// --- Subscribe ---

func TestSubscribe_DeliversLatest(t *testing.T) {
	m, _ := testManager(t)
	updates, cancel := m.Subscribe()
	defer cancel()

	first := <-updates
	assert.Equal(t, StatusIdle, first.Status)

	require.NoError(t, m.MarkDirty())
	require.NoError(t, m.SetError("e"))

	latest := <-updates
	assert.Equal(t, StatusError, latest.Status)
	assert.True(t, latest.Dirty)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	m, _ := testManager(t)
	updates, cancel := m.Subscribe()
	<-updates
	cancel()
	cancel()

	_, ok := <-updates
	assert.False(t, ok)
}
