package magick

import (
	"fmt"
	"strings"
	"time"
)

// Operation names a write operation supported by Client.Apply.
type Operation string

const (
	OpConvert   Operation = "convert"
	OpRotate    Operation = "rotate"
	OpResize    Operation = "resize"
	OpCrop      Operation = "crop"
	OpRescrop   Operation = "rescrop"
	OpThumbnail Operation = "thumbnail"
)

// Operations lists every write operation in a stable order.
var Operations = []Operation{OpConvert, OpRotate, OpResize, OpCrop, OpRescrop, OpThumbnail}

// ParseOperation maps a case-insensitive name to an Operation.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Operations {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unsupported operation: %q", s)
}

// Options describes one operation request. The JSON names match the option
// names accepted by the MCP tools and worker jobs.
//
// Numeric fields use zero for "not set", except Degree which is a pointer so
// that a rotation of 0 degrees can be requested, and X/Y whose zero value is
// also their default.
type Options struct {
	Src string `json:"src"`
	Dst string `json:"dst"`

	Width      int `json:"width,omitempty"`
	Height     int `json:"height,omitempty"`
	CropWidth  int `json:"cropwidth,omitempty"`
	CropHeight int `json:"cropheight,omitempty"`

	Quality    int    `json:"quality,omitempty"`
	Background string `json:"background,omitempty"`
	Flatten    bool   `json:"flatten,omitempty"`
	AutoOrient bool   `json:"autoOrient,omitempty"`
	Strip      bool   `json:"strip,omitempty"`

	Gravity string `json:"gravity,omitempty"`
	X       int    `json:"x,omitempty"`
	Y       int    `json:"y,omitempty"`

	Degree *float64 `json:"degree,omitempty"`

	// Interlace is passed verbatim, e.g. "Line", "Plane", "None".
	Interlace string `json:"interlace,omitempty"`

	IgnoreAspectRatio bool `json:"ignoreAspectRatio,omitempty"`
	NeverEnlarge      bool `json:"neverEnlarge,omitempty"`
	Fill              bool `json:"fill,omitempty"`

	// TimeoutMS bounds the child process in milliseconds; 0 uses the default.
	TimeoutMS int `json:"timeout,omitempty"`
}

// Degrees returns a pointer suitable for Options.Degree.
func Degrees(d float64) *float64 {
	return &d
}

// Timeout converts TimeoutMS to a duration.
func (o Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

// Validate checks the fields op requires. Paths are checked first, so a
// request missing both a path and a dimension reports ErrMissingPath.
// A rotation without a degree is a missing dimension, not a missing path.
func (o Options) Validate(op Operation) error {
	if o.Src == "" || o.Dst == "" {
		return ErrMissingPath
	}
	switch op {
	case OpRotate:
		if o.Degree == nil {
			return fmt.Errorf("%w: degree is required for rotate", ErrMissingDimension)
		}
	case OpResize, OpRescrop, OpThumbnail:
		if o.Width <= 0 {
			return fmt.Errorf("%w: width is required for %s", ErrMissingDimension, op)
		}
	case OpCrop:
		if o.CropWidth <= 0 {
			return fmt.Errorf("%w: cropwidth is required for crop", ErrMissingDimension)
		}
	}
	return nil
}

// withDefaults fills the fields op derives from others.
func (o Options) withDefaults(op Operation) Options {
	switch op {
	case OpResize, OpThumbnail:
		if o.Height <= 0 {
			o.Height = o.Width
		}
	case OpCrop:
		if o.CropHeight <= 0 {
			o.CropHeight = o.CropWidth
		}
	case OpRescrop:
		if o.Height <= 0 {
			o.Height = o.Width
		}
		if o.CropWidth <= 0 {
			o.CropWidth = o.Width
		}
		if o.CropHeight <= 0 {
			o.CropHeight = o.Height
		}
	}
	if o.Gravity == "" {
		o.Gravity = defaultGravity
	}
	return o
}
