package magick

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
)

// Client is the public operation surface. Every method blocks until its
// child process exits or times out; run calls in goroutines to overlap them.
// A Client is safe for concurrent use.
type Client struct {
	invoker *Invoker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client and its invoker.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
		c.invoker.Logger = l
	}
}

// WithBinDir looks programs up in dir instead of PATH.
func WithBinDir(dir string) Option {
	return func(c *Client) { c.invoker.BinDir = dir }
}

// WithTimeout replaces DefaultTimeout for requests that carry no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.invoker.Timeout = d }
}

// New returns a Client for backend.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		invoker: &Invoker{Backend: backend},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend reports which tool suite the client drives.
func (c *Client) Backend() Backend {
	return c.invoker.backend()
}

// Convert re-encodes o.Src into o.Dst; the format follows dst's extension.
// It returns the destination path.
func (c *Client) Convert(ctx context.Context, o Options) (string, error) {
	return c.write(ctx, OpConvert, o)
}

// Rotate rotates o.Src by o.Degree.
func (c *Client) Rotate(ctx context.Context, o Options) (string, error) {
	return c.write(ctx, OpRotate, o)
}

// Resize scales o.Src to fit o.Width x o.Height.
func (c *Client) Resize(ctx context.Context, o Options) (string, error) {
	return c.write(ctx, OpResize, o)
}

// Crop cuts o.CropWidth x o.CropHeight out of o.Src.
func (c *Client) Crop(ctx context.Context, o Options) (string, error) {
	return c.write(ctx, OpCrop, o)
}

// Rescrop resizes and then crops in one invocation.
func (c *Client) Rescrop(ctx context.Context, o Options) (string, error) {
	return c.write(ctx, OpRescrop, o)
}

// Thumbnail identifies o.Src to learn its orientation, then produces a
// thumbnail that covers o.Width x o.Height and is cropped to it.
func (c *Client) Thumbnail(ctx context.Context, o Options) (string, error) {
	return c.write(ctx, OpThumbnail, o)
}

// Apply runs op with o.
func (c *Client) Apply(ctx context.Context, op Operation, o Options) (string, error) {
	return c.write(ctx, op, o)
}

func (c *Client) write(ctx context.Context, op Operation, o Options) (string, error) {
	if err := o.Validate(op); err != nil {
		return "", err
	}
	if err := EnsureDir(o.Dst); err != nil {
		return "", err
	}

	var args []string
	var err error
	if op == OpThumbnail {
		var src *ImageInfo
		src, err = c.Info(ctx, o.Src)
		if err != nil {
			return "", fmt.Errorf("thumbnail: %w", err)
		}
		args, err = ThumbnailArgs(o, src)
	} else {
		args, err = BuildArgs(op, o)
	}
	if err != nil {
		return "", err
	}

	if _, _, err := c.invoker.Run(ctx, "convert", args, o.Timeout()); err != nil {
		return "", err
	}
	c.logger.Info("image written", "operation", op, "src", o.Src, "dst", o.Dst)
	return o.Dst, nil
}

// execPrograms are the tools Exec is willing to start.
var execPrograms = map[string]bool{
	"animate":   true,
	"compare":   true,
	"composite": true,
	"conjure":   true,
	"convert":   true,
	"gm":        true,
	"identify":  true,
	"magick":    true,
	"mogrify":   true,
	"montage":   true,
	"stream":    true,
}

// gmCommands are the bare tool names GraphicsMagick provides as gm
// subcommands.
var gmCommands = map[string]bool{
	"animate":   true,
	"compare":   true,
	"composite": true,
	"conjure":   true,
	"convert":   true,
	"identify":  true,
	"mogrify":   true,
	"montage":   true,
}

// Exec runs a raw image tool command line such as
// `convert in.png -negate out.png` and returns its stdout.
//
// The line is split with POSIX shell quoting rules but no shell is involved:
// pipes, redirections and variable expansion are not available. The program
// must be one of the ImageMagick or GraphicsMagick tools, otherwise
// ErrRestricted is returned without starting anything.
//
// Bare tool names follow the client's backend: with GraphicsMagick,
// `convert a.png b.jpg` runs `gm convert a.png b.jpg`. Lines starting with
// gm or magick run that program as written.
func (c *Client) Exec(ctx context.Context, command string, timeout time.Duration) (string, error) {
	words, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("parse command: %w", err)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("%w: empty command", ErrRestricted)
	}
	program := filepath.Base(words[0])
	if !execPrograms[program] {
		return "", fmt.Errorf("%w: %s", ErrRestricted, program)
	}
	if strings.ContainsRune(words[0], filepath.Separator) {
		return "", fmt.Errorf("%w: programs must be named without a path", ErrRestricted)
	}

	var stdout string
	switch {
	case program == "gm" || program == "magick" || c.Backend() == ImageMagick:
		stdout, _, err = c.invoker.run(ctx, program, program, words[1:], timeout)
	case gmCommands[program]:
		stdout, _, err = c.invoker.Run(ctx, program, words[1:], timeout)
	default:
		return "", fmt.Errorf("%w: %s is not available with GraphicsMagick", ErrRestricted, program)
	}
	if err != nil {
		return "", err
	}
	return stdout, nil
}
