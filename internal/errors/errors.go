package errors

import "errors"

// Sync pipeline errors.
var (
	ErrConflictDeclined = errors.New("remote changed since last sync and overwrite was declined")
	ErrMissingAssets    = errors.New("referenced assets could not be resolved")
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrNotConnected     = errors.New("remote store not connected")
)

// Remote store errors.
var (
	ErrRemote        = errors.New("remote store request failed")
	ErrMalformedLock = errors.New("unrecognized lock marker")
)

// RemoteError records which remote operation failed. It matches ErrRemote
// with errors.Is so callers can treat every transport failure as
// retryable without inspecting the cause.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *RemoteError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRemote.
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// Remote wraps err as a RemoteError for op. Returns nil when err is nil.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}

	return &RemoteError{Op: op, Err: err}
}
