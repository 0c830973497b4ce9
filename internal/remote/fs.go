package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/chatsync/internal/models"
)

const (
	// remoteDirPerm is the permission mode for directories created in
	// the remote root.
	remoteDirPerm = fs.FileMode(0o755)

	// remoteFilePerm is the permission mode for objects written to the
	// remote root.
	remoteFilePerm = fs.FileMode(0o644)

	metadataFile = "metadata.json"
	lockFile     = "sync.lock"
	assetsDir    = "assets"
	tempPrefix   = ".chatsync-tmp-"

	// defaultBatchSize is used when FSConfig.BatchSize is not positive.
	defaultBatchSize = 10
)

// FSConfig configures a filesystem remote.
type FSConfig struct {
	// Root is the directory standing in for the remote bucket, typically
	// a folder mirrored by a cloud drive client.
	Root string

	// Device is recorded in lock markers.
	Device string

	// BatchSize bounds how many assets UploadAssetsInBatches writes
	// before reporting progress.
	BatchSize int
}

// FS is a Store backed by a directory. Objects are written with a temp
// file and rename so readers never observe a partial object.
type FS struct {
	root      string
	device    string
	batchSize int
	logger    *slog.Logger

	// mu serializes writes from this process. Other processes writing
	// the same directory are only protected by the rename atomicity.
	mu sync.Mutex
}

// NewFS creates the remote root if needed and returns an FS store.
func NewFS(cfg FSConfig, logger *slog.Logger) (*FS, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("remote root must not be empty")
	}

	if err := os.MkdirAll(cfg.Root, remoteDirPerm); err != nil {
		return nil, fmt.Errorf("creating remote root %s: %w", cfg.Root, err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &FS{root: cfg.Root, device: cfg.Device, batchSize: batch, logger: logger}, nil
}

// Root returns the remote root directory.
func (f *FS) Root() string {
	return f.root
}

// DownloadMetadata returns the metadata document or nil if none was
// published yet.
func (f *FS) DownloadMetadata(ctx context.Context) ([]byte, error) {
	return f.read(ctx, filepath.Join(f.root, metadataFile))
}

// UploadMetadata replaces the metadata document.
func (f *FS) UploadMetadata(ctx context.Context, doc []byte) error {
	return f.write(ctx, filepath.Join(f.root, metadataFile), doc)
}

// ListAssets returns every asset identifier present, sorted.
func (f *FS) ListAssets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(f.root, assetsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}

	ids := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}

		ids = append(ids, e.Name())
	}

	sort.Strings(ids)

	return ids, nil
}

// UploadAssetsInBatches writes assets in batches of the configured size,
// calling onProgress after each batch.
func (f *FS) UploadAssetsInBatches(ctx context.Context, assets []Asset, onProgress ProgressFunc) error {
	if err := f.EnsureAssetsContainerExists(ctx); err != nil {
		return err
	}

	done := 0

	for _, batch := range Batches(assets, f.batchSize) {
		for _, a := range batch {
			path, err := f.assetPath(a.ID)
			if err != nil {
				return err
			}

			if err := f.write(ctx, path, a.Data); err != nil {
				return fmt.Errorf("uploading asset %s: %w", a.ID, err)
			}
		}

		done += len(batch)

		if onProgress != nil {
			onProgress(done, len(assets))
		}
	}

	return nil
}

// DeleteAssets removes assets. Missing assets are ignored.
func (f *FS) DeleteAssets(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := f.assetPath(id)
		if err != nil {
			return err
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting asset %s: %w", id, err)
		}
	}

	return nil
}

// DownloadAsset returns an asset payload, or nil if absent.
func (f *FS) DownloadAsset(ctx context.Context, id string) ([]byte, error) {
	path, err := f.assetPath(id)
	if err != nil {
		return nil, err
	}

	return f.read(ctx, path)
}

// UploadLockFile records op as in progress.
func (f *FS) UploadLockFile(ctx context.Context, op Operation) error {
	data, err := json.Marshal(LockMarker{Operation: op, Device: f.device, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	return f.write(ctx, filepath.Join(f.root, lockFile), data)
}

// CheckLockFile returns the current lock marker, or nil.
func (f *FS) CheckLockFile(ctx context.Context) (*LockMarker, error) {
	data, err := f.read(ctx, filepath.Join(f.root, lockFile))
	if err != nil || data == nil {
		return nil, err
	}

	m := ParseLockMarker(data)

	return &m, nil
}

// DeleteLockFile removes the lock marker. A missing marker is not an error.
func (f *FS) DeleteLockFile(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(filepath.Join(f.root, lockFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting lock file: %w", err)
	}

	return nil
}

// EnsureAssetsContainerExists creates the assets directory.
func (f *FS) EnsureAssetsContainerExists(_ context.Context) error {
	if err := os.MkdirAll(filepath.Join(f.root, assetsDir), remoteDirPerm); err != nil {
		return fmt.Errorf("creating assets directory: %w", err)
	}

	return nil
}

// assetPath maps an identifier to its file, rejecting identifiers that
// could escape the assets directory.
func (f *FS) assetPath(id string) (string, error) {
	if _, _, ok := models.ParseAssetID(id); !ok {
		return "", fmt.Errorf("invalid asset identifier %q", id)
	}

	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid asset identifier %q", id)
	}

	return filepath.Join(f.root, assetsDir, id), nil
}

func (f *FS) read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from validated components
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	return data, nil
}

// write replaces path atomically: write to temp file, then rename.
func (f *FS) write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, remoteDirPerm); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpName, remoteFilePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
