// Package magick drives ImageMagick or GraphicsMagick as a child process.
//
// No pixels are touched in-process. Each operation validates its Options,
// makes sure the destination directory exists, translates the Options into a
// deterministic argument list and runs the external binary under a timeout.
//
// # Operations
//
//   - Info: identify a file and parse type, depth, size and density
//   - Convert, Rotate, Resize, Crop, Rescrop: one convert invocation each
//   - Thumbnail: identify first, then convert with an orientation-aware
//     geometry so the thumbnail covers the requested box before cropping
//   - Exec: run a raw image tool command line (no shell)
//   - CheckInstalled: explicit startup health check
//
// # Timeouts
//
// Every process is bounded by the request timeout (Options.TimeoutMS), the
// client default, or DefaultTimeout (10s). On expiry the process is killed
// with SIGKILL and the call returns a *ProcessError with TimedOut set.
//
// # Errors
//
// Validation failures are sentinel errors (ErrMissingPath,
// ErrMissingDimension) returned before any process starts. Unreadable files
// yield ErrUnsupportedFile. Process and directory failures are *ProcessError
// and *DirectoryError. KindOf maps any of them to a Kind for transport.
//
// # Concurrency
//
// Client methods block until their process exits. Calls share no mutable
// state, so any number may run at once from separate goroutines; each spawns
// its own process.
package magick
