// Package syncstate tracks whether local data has unpublished changes,
// which snapshot it was last reconciled with and whether a sync is
// running. Every mutation is persisted before it becomes visible so a
// restart resumes with the same view.
package syncstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/store"
)

// Status is the projection shown to the user.
type Status string

const (
	StatusNotConnected Status = "not-connected"
	StatusIdle         Status = "idle"
	StatusDirty        Status = "dirty"
	StatusSyncing      Status = "syncing"
	StatusError        Status = "error"
)

// KV is the settings storage the manager persists to. Nil values delete.
type KV interface {
	Setting(key string) ([]byte, error)
	PutSettings(values map[string][]byte) error
}

// LastError is the sticky failure record kept until cleared.
type LastError struct {
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// State is a point-in-time copy of the manager's fields.
type State struct {
	Status     Status     `json:"status" yaml:"status"`
	Detail     string     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Operation  string     `json:"operation,omitempty" yaml:"operation,omitempty"`
	Connected  bool       `json:"connected" yaml:"connected"`
	Dirty      bool       `json:"dirty" yaml:"dirty"`
	LastSyncID string     `json:"lastSyncId,omitempty" yaml:"last_sync_id,omitempty"`
	LastSyncAt time.Time  `json:"lastSyncAt,omitzero" yaml:"last_sync_at,omitempty"`
	LastError  *LastError `json:"lastError,omitempty" yaml:"last_error,omitempty"`
}

// Manager owns the sync bookkeeping. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	kv     KV
	logger *slog.Logger
	now    func() time.Time

	dirty      bool
	lastSyncID string
	lastSyncAt time.Time
	lastErr    *LastError

	connected bool
	syncing   bool
	operation string
	phase     string

	// gen counts MarkDirty calls; syncGen is gen at BeginSync. A commit
	// only clears dirty when no change landed while the sync ran.
	gen     uint64
	syncGen uint64

	subs    map[int]chan State
	nextSub int
}

// Load reads the persisted fields from kv.
func Load(kv KV, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		kv:     kv,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan State),
	}

	raw, err := kv.Setting(store.KeyDirty)
	if err != nil {
		return nil, fmt.Errorf("reading dirty flag: %w", err)
	}

	m.dirty = string(raw) == "true"

	raw, err = kv.Setting(store.KeyLastSyncID)
	if err != nil {
		return nil, fmt.Errorf("reading last sync id: %w", err)
	}

	if raw != nil {
		if err := json.Unmarshal(raw, &m.lastSyncID); err != nil {
			// Older writers stored the bare token.
			m.lastSyncID = string(raw)
		}
	}

	raw, err = kv.Setting(store.KeyLastSyncTimestamp)
	if err != nil {
		return nil, fmt.Errorf("reading last sync time: %w", err)
	}

	if ms, err := strconv.ParseInt(string(raw), 10, 64); err == nil && ms > 0 {
		m.lastSyncAt = time.UnixMilli(ms).UTC()
	}

	raw, err = kv.Setting(store.KeyLastError)
	if err != nil {
		return nil, fmt.Errorf("reading last error: %w", err)
	}

	if len(raw) > 0 && string(raw) != "null" {
		var le LastError
		if err := json.Unmarshal(raw, &le); err != nil {
			logger.Warn("discarding unreadable last error", slog.String("error", err.Error()))
		} else {
			m.lastErr = &le
		}
	}

	return m, nil
}

// MarkDirty records that local data changed since the last sync.
func (m *Manager) MarkDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	if m.dirty {
		return nil
	}

	if err := m.kv.PutSettings(map[string][]byte{store.KeyDirty: []byte("true")}); err != nil {
		return fmt.Errorf("persisting dirty flag: %w", err)
	}

	m.dirty = true
	m.notifyLocked()

	return nil
}

// ForceDirty sets the dirty flag from inside a running sync. Unlike
// MarkDirty it is not treated as a change racing the sync, so a
// following Commit clears it.
func (m *Manager) ForceDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncing {
		m.syncGen = m.gen
	}

	if m.dirty {
		return nil
	}

	if err := m.kv.PutSettings(map[string][]byte{store.KeyDirty: []byte("true")}); err != nil {
		return fmt.Errorf("persisting dirty flag: %w", err)
	}

	m.dirty = true
	m.notifyLocked()

	return nil
}

// BeginSync marks a sync of the given operation as running. It returns
// false when one is already running.
func (m *Manager) BeginSync(operation string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncing {
		return false
	}

	m.syncing = true
	m.operation = operation
	m.phase = ""
	m.syncGen = m.gen
	m.notifyLocked()

	return true
}

// SetPhase updates the human-readable description of the running sync.
func (m *Manager) SetPhase(detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = detail
	m.notifyLocked()
}

// Commit records a successful publish or import of syncID. The dirty
// flag is cleared unless MarkDirty ran after BeginSync; lastError is
// cleared.
func (m *Manager) Commit(syncID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	dirty := m.dirty && m.gen != m.syncGen

	token, err := json.Marshal(syncID)
	if err != nil {
		return err
	}

	err = m.kv.PutSettings(map[string][]byte{
		store.KeyLastSyncID:        token,
		store.KeyLastSyncTimestamp: []byte(strconv.FormatInt(at.UnixMilli(), 10)),
		store.KeyDirty:             []byte(strconv.FormatBool(dirty)),
		store.KeyLastError:         nil,
	})
	if err != nil {
		return fmt.Errorf("persisting sync result: %w", err)
	}

	m.lastSyncID = syncID
	m.lastSyncAt = at
	m.dirty = dirty
	m.lastErr = nil
	m.notifyLocked()

	return nil
}

// EndSync marks the running sync finished. A non-nil err other than a
// declined conflict is recorded as the sticky last error.
func (m *Manager) EndSync(err error) {
	m.mu.Lock()
	m.syncing = false
	m.operation = ""
	m.phase = ""
	m.notifyLocked()
	m.mu.Unlock()

	if err == nil || errors.Is(err, apperrors.ErrConflictDeclined) {
		return
	}

	if perr := m.SetError(err.Error()); perr != nil {
		m.logger.Error("persisting last error", slog.String("error", perr.Error()))
	}
}

// SetError records a sticky failure.
func (m *Manager) SetError(message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	le := &LastError{Message: message, Timestamp: m.now().UTC()}

	data, err := json.Marshal(le)
	if err != nil {
		return err
	}

	if err := m.kv.PutSettings(map[string][]byte{store.KeyLastError: data}); err != nil {
		return fmt.Errorf("persisting last error: %w", err)
	}

	m.lastErr = le
	m.notifyLocked()

	return nil
}

// ClearError drops the sticky failure.
func (m *Manager) ClearError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastErr == nil {
		return nil
	}

	if err := m.kv.PutSettings(map[string][]byte{store.KeyLastError: nil}); err != nil {
		return fmt.Errorf("clearing last error: %w", err)
	}

	m.lastErr = nil
	m.notifyLocked()

	return nil
}

// AdoptSyncID records a token published by a sibling sharing this
// store. The dirty flag is left alone.
func (m *Manager) AdoptSyncID(syncID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if syncID == "" || syncID == m.lastSyncID {
		return nil
	}

	token, err := json.Marshal(syncID)
	if err != nil {
		return err
	}

	if err := m.kv.PutSettings(map[string][]byte{store.KeyLastSyncID: token}); err != nil {
		return fmt.Errorf("persisting adopted sync id: %w", err)
	}

	m.lastSyncID = syncID
	m.notifyLocked()

	return nil
}

// SetConnected records whether a remote store is configured and
// reachable. It is not persisted.
func (m *Manager) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected == connected {
		return
	}

	m.connected = connected
	m.notifyLocked()
}

func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dirty
}

func (m *Manager) Syncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.syncing
}

func (m *Manager) LastSyncID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastSyncID
}

// Status returns the current status and its detail text.
func (m *Manager) Status() (Status, string) {
	st := m.Snapshot()
	return st.Status, st.Detail
}

// Snapshot returns a copy of every field.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	st := State{
		Operation:  m.operation,
		Connected:  m.connected,
		Dirty:      m.dirty,
		LastSyncID: m.lastSyncID,
		LastSyncAt: m.lastSyncAt,
	}

	if m.lastErr != nil {
		le := *m.lastErr
		st.LastError = &le
	}

	switch {
	case !m.connected:
		st.Status = StatusNotConnected
	case m.syncing:
		st.Status = StatusSyncing
		st.Detail = m.phase
	case m.lastErr != nil:
		st.Status = StatusError
		st.Detail = m.lastErr.Message
	case m.dirty:
		st.Status = StatusDirty
	default:
		st.Status = StatusIdle
	}

	return st
}

// Subscribe returns a channel receiving the latest state after each
// change. Slow readers only see the most recent state. cancel closes
// the channel.
func (m *Manager) Subscribe() (updates <-chan State, cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) notifyLocked() {
	if len(m.subs) == 0 {
		return
	}

	st := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
