package magick

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureDir makes sure the directory that will hold dst exists, creating it
// and any missing ancestors. Failures are reported as *DirectoryError.
func EnsureDir(dst string) error {
	dir := filepath.Dir(dst)
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &DirectoryError{Dir: dir, Err: fs.ErrExist}
	case !errors.Is(err, fs.ErrNotExist):
		return &DirectoryError{Dir: dir, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &DirectoryError{Dir: dir, Err: err}
	}
	return nil
}
