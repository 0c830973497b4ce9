package assets

import (
	"context"
	"log/slog"
)

// Downloader fetches one payload. A nil payload with a nil error means
// the remote store does not hold it.
type Downloader interface {
	DownloadAsset(ctx context.Context, id string) ([]byte, error)
}

// Fetcher downloads payloads one at a time.
type Fetcher struct {
	src    Downloader
	logger *slog.Logger

	// OnFetched, when set, is called after each attempt.
	OnFetched func(id string, size int, err error)
}

// NewFetcher returns a Fetcher reading from src.
func NewFetcher(src Downloader, logger *slog.Logger) *Fetcher {
	return &Fetcher{src: src, logger: logger}
}

// Fetch downloads each identifier in order. Failures are logged and the
// identifier is returned in missing instead of aborting the pass. Only
// context cancellation stops early; the remaining identifiers are then
// reported missing along with ctx.Err().
func (f *Fetcher) Fetch(ctx context.Context, ids []string) (fetched map[string][]byte, missing []string, err error) {
	fetched = make(map[string][]byte, len(ids))

	for i, id := range ids {
		if ctx.Err() != nil {
			return fetched, append(missing, ids[i:]...), ctx.Err()
		}

		data, err := f.src.DownloadAsset(ctx, id)

		if f.OnFetched != nil {
			f.OnFetched(id, len(data), err)
		}

		switch {
		case err != nil:
			f.logger.Warn("asset download failed", slog.String("asset", id), slog.String("error", err.Error()))
			missing = append(missing, id)
		case data == nil:
			f.logger.Warn("asset not found on remote", slog.String("asset", id))
			missing = append(missing, id)
		default:
			fetched[id] = data
		}
	}

	return fetched, missing, nil
}
