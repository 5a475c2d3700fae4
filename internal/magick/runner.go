package magick

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds a single child process when the caller gives none.
const DefaultTimeout = 10 * time.Second

// Backend selects which image tool suite is invoked.
type Backend string

const (
	// ImageMagick runs one binary per action: convert, identify, ...
	ImageMagick Backend = "imagemagick"

	// GraphicsMagick runs every action through the gm binary: gm convert, ...
	GraphicsMagick Backend = "graphicsmagick"
)

// ParseBackend maps a configuration string to a Backend.
// The empty string selects ImageMagick.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "imagemagick", "im":
		return ImageMagick, nil
	case "graphicsmagick", "gm":
		return GraphicsMagick, nil
	default:
		return "", fmt.Errorf("unknown backend %q (use imagemagick or graphicsmagick)", s)
	}
}

// command returns the program and argv used to run action on this backend.
func (b Backend) command(action string, args []string) (string, []string) {
	if b == GraphicsMagick {
		return "gm", append([]string{action}, args...)
	}
	return action, append([]string(nil), args...)
}

// Invoker spawns the external image tool. The zero value runs ImageMagick
// binaries from PATH with DefaultTimeout and logs through slog.Default().
//
// An Invoker holds no mutable state and is safe for concurrent use; every
// call creates and reaps exactly one OS process.
type Invoker struct {
	// Backend selects ImageMagick or GraphicsMagick.
	Backend Backend

	// BinDir, when set, is where programs are looked up instead of PATH.
	BinDir string

	// Timeout replaces DefaultTimeout for calls that pass no timeout.
	Timeout time.Duration

	// Logger receives a debug record per process. Nil means slog.Default().
	Logger *slog.Logger
}

// Run executes action (e.g. "identify", "convert") with args and waits for it
// to exit or for timeout to expire, whichever comes first. A timeout <= 0
// falls back to the invoker's Timeout and then to DefaultTimeout.
//
// On expiry (or cancellation of ctx) the child is killed with SIGKILL and the
// returned error is a *ProcessError with TimedOut set for deadline expiry.
// If a grandchild still holds stdout or stderr open, Run gives up on the pipes
// after a quarter of the timeout (at most one second), so a call can settle
// that much later than its timeout.
// A non-zero exit status is also reported as a *ProcessError. stdout and
// stderr are returned in every case with whatever the process wrote.
func (inv *Invoker) Run(ctx context.Context, action string, args []string, timeout time.Duration) (string, string, error) {
	name, argv := inv.backend().command(action, args)
	return inv.run(ctx, action, name, argv, timeout)
}

func (inv *Invoker) run(ctx context.Context, action, name string, argv []string, timeout time.Duration) (string, string, error) {
	if timeout <= 0 {
		timeout = inv.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, inv.resolve(name), argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren holding the pipes open must not keep Wait blocked after a kill.
	cmd.WaitDelay = waitDelay(timeout)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	inv.logger().Debug("magick process finished",
		"action", action,
		"program", name,
		"args", argv,
		"exit", exitCode,
		"duration", elapsed,
	)

	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	procErr := &ProcessError{
		Action:   action,
		Args:     argv,
		ExitCode: exitCode,
		Stderr:   stderr.String(),
		Err:      err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		procErr.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		procErr.Err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return stdout.String(), stderr.String(), procErr
}

// waitDelay bounds how long Wait drains the pipes after the child is gone.
func waitDelay(timeout time.Duration) time.Duration {
	return min(max(timeout/4, 10*time.Millisecond), time.Second)
}

func (inv *Invoker) backend() Backend {
	if inv.Backend == "" {
		return ImageMagick
	}
	return inv.Backend
}

func (inv *Invoker) resolve(name string) string {
	if inv.BinDir == "" || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(inv.BinDir, name)
}

func (inv *Invoker) logger() *slog.Logger {
	if inv.Logger == nil {
		return slog.Default()
	}
	return inv.Logger
}
