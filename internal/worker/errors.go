package worker

import (
	"context"
	"errors"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
)

// KindStorage and KindInvalidJob extend magick.Kind for failures outside the
// image tools.
const (
	KindStorage    magick.Kind = "storage_failure"
	KindInvalidJob magick.Kind = "invalid_job"
)

// ProcessingError tells the consumer whether a failed delivery is worth
// another attempt.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (e *ProcessingError) Error() string {
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failed object store call.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrObjectNotFound is returned by an ObjectStore for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// kindOf classifies err for status messages.
func kindOf(err error) magick.Kind {
	var storageErr *StorageError
	switch {
	case errors.Is(err, ErrInvalidJob):
		return KindInvalidJob
	case errors.As(err, &storageErr):
		return KindStorage
	default:
		return magick.KindOf(err)
	}
}

// requeue reports whether a delivery that failed with err should be retried.
// Bad requests and image tool failures are deterministic; cancellation and
// storage trouble other than a missing object are assumed to be transient.
func requeue(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return !errors.Is(err, ErrObjectNotFound)
	}
	return false
}
