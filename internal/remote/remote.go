// Package remote defines the remote blob store contract consumed by the
// sync engine and ships a filesystem-backed implementation.
package remote

//go:generate mockgen -source=remote.go -destination=mock_remote.go -package=remote

import (
	"context"
	"encoding/json"
	"time"
)

// Operation is the pipeline recorded in a lock marker.
type Operation string

const (
	OpPush Operation = "push"
	OpPull Operation = "pull"
)

// Asset is one binary payload addressed by identifier.
type Asset struct {
	ID   string
	Data []byte
}

// ProgressFunc reports upload progress as done of total assets.
type ProgressFunc func(done, total int)

// Batches splits items into consecutive groups of at most size. The
// groups are capped so appending to one never overwrites the next.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}

	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n:n])
		items = items[n:]
	}

	return out
}

// Store is the remote blob store. Download methods return nil, nil when
// the object does not exist.
type Store interface {
	DownloadMetadata(ctx context.Context) ([]byte, error)
	UploadMetadata(ctx context.Context, doc []byte) error
	ListAssets(ctx context.Context) ([]string, error)
	UploadAssetsInBatches(ctx context.Context, assets []Asset, onProgress ProgressFunc) error
	DeleteAssets(ctx context.Context, ids []string) error
	DownloadAsset(ctx context.Context, id string) ([]byte, error)
	UploadLockFile(ctx context.Context, op Operation) error
	CheckLockFile(ctx context.Context) (*LockMarker, error)
	DeleteLockFile(ctx context.Context) error
	EnsureAssetsContainerExists(ctx context.Context) error
}

// LockMarker is the advisory marker written before a pipeline touches
// the remote store. Raw keeps the stored bytes so an unrecognized
// marker can still be shown to the user.
type LockMarker struct {
	Operation Operation `json:"operation"`
	Device    string    `json:"device,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	Raw       string    `json:"-"`
}

// Valid reports whether the marker names a known operation.
func (m LockMarker) Valid() bool {
	return m.Operation == OpPush || m.Operation == OpPull
}

// ParseLockMarker decodes a stored marker. Undecodable content (for
// example a legacy plain-text marker) yields a marker with an empty
// operation rather than an error, so callers can prompt for recovery.
func ParseLockMarker(data []byte) LockMarker {
	var m LockMarker
	if err := json.Unmarshal(data, &m); err != nil {
		m = LockMarker{}
	}

	m.Raw = string(data)

	return m
}
