package magick

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned before any process is started. Use errors.Is to
// test for them; they may be wrapped with additional context.
var (
	// ErrMissingPath is returned when the source or destination path is empty.
	ErrMissingPath = errors.New("missing image paths: make sure both source and destination files are specified")

	// ErrMissingDimension is returned when an operation requires a dimension
	// (width, cropwidth or degree) that was not provided.
	ErrMissingDimension = errors.New("missing dimensions: specify the width at least")

	// ErrUnsupportedFile is returned when identify output cannot be parsed.
	ErrUnsupportedFile = errors.New("file not supported")

	// ErrRestricted is returned by Exec for commands that are not image tools.
	ErrRestricted = errors.New("the command you are trying to execute is prohibited")
)

// Kind classifies an error produced by this package.
type Kind string

const (
	KindMissingPath       Kind = "missing_path"
	KindMissingDimension  Kind = "missing_dimension"
	KindUnsupportedFile   Kind = "unsupported_file"
	KindRestricted        Kind = "restricted"
	KindProcessFailure    Kind = "process_failure"
	KindDirectoryCreation Kind = "directory_creation_failure"
	KindUnknown           Kind = "unknown"
)

// ProcessError reports a child process that exited non-zero, could not be
// started, or was killed after its timeout expired.
type ProcessError struct {
	Action   string
	Args     []string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ProcessError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out and was killed", e.Action)
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s failed (exit %d): %s", e.Action, e.ExitCode, msg)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// DirectoryError reports a destination directory that could not be created.
type DirectoryError struct {
	Dir string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. It returns KindUnknown for errors that did not
// originate in this package, and "" for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var procErr *ProcessError
	var dirErr *DirectoryError
	switch {
	case errors.Is(err, ErrMissingPath):
		return KindMissingPath
	case errors.Is(err, ErrMissingDimension):
		return KindMissingDimension
	case errors.Is(err, ErrUnsupportedFile):
		return KindUnsupportedFile
	case errors.Is(err, ErrRestricted):
		return KindRestricted
	case errors.As(err, &dirErr):
		return KindDirectoryCreation
	case errors.As(err, &procErr):
		return KindProcessFailure
	default:
		return KindUnknown
	}
}
