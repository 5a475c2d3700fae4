package magick

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// identifyFormat asks identify for type, depth, width, height, file size,
// horizontal and vertical density, then the file name. The trailing newline
// separates frames of multi-frame files; only the first frame is parsed.
const identifyFormat = "%m %z %w %h %b %x %y %f\n"

// minIdentifyFields is the number of fields before the file name.
const minIdentifyFields = 7

// Density is the image resolution on each axis, in the file's own units.
type Density struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ImageInfo is the parsed result of identify for one file.
type ImageInfo struct {
	// Type is the lower-cased format name, e.g. "jpeg", "png".
	Type string `json:"type"`

	Depth  int `json:"depth"`
	Width  int `json:"width"`
	Height int `json:"height"`

	// Size is the file size in bytes as reported (and rounded) by identify.
	Size float64 `json:"size"`

	Density Density `json:"density"`

	// Name is the file name identify reports; Path is what was asked for.
	Name string `json:"name"`
	Path string `json:"path"`

	// Warnings holds stderr lines when identify succeeded with diagnostics.
	Warnings []string `json:"warnings,omitempty"`
}

// Info runs identify on path and parses the result.
//
// A file identify cannot read is reported as ErrUnsupportedFile. When the
// failure came from the process, the returned error also wraps the
// *ProcessError. A timed-out identify is reported as the *ProcessError alone.
func (c *Client) Info(ctx context.Context, path string) (*ImageInfo, error) {
	if path == "" {
		return nil, ErrMissingPath
	}
	stdout, stderr, err := c.invoker.Run(ctx, "identify", []string{"-format", identifyFormat, path}, 0)
	if err != nil {
		var procErr *ProcessError
		if errors.As(err, &procErr) && procErr.TimedOut {
			return nil, err
		}
		info, parseErr := ParseIdentify(stdout, stderr, path)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %w", parseErr, err)
		}
		return info, nil
	}
	return ParseIdentify(stdout, stderr, path)
}

// densityUnits are words identify may print next to a density value.
var densityUnits = map[string]bool{
	"PixelsPerInch":       true,
	"PixelsPerCentimeter": true,
	"Undefined":           true,
}

// ParseIdentify parses one line of identify output produced with
// identifyFormat. Fewer than seven fields yield ErrUnsupportedFile, carrying
// stderr as detail when identify printed any.
func ParseIdentify(stdout, stderr, path string) (*ImageInfo, error) {
	line := strings.TrimLeft(stdout, " \t\r\n")
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}

	var head []string
	var name []string
	for _, field := range strings.Fields(line) {
		// A unit may follow either density; once the name starts, words are kept.
		if densityUnits[field] && len(name) == 0 {
			continue
		}
		if len(head) < minIdentifyFields {
			head = append(head, field)
			continue
		}
		name = append(name, field)
	}
	if len(head) < minIdentifyFields {
		return nil, unsupported(stderr)
	}

	depth, err := strconv.Atoi(head[1])
	if err != nil {
		return nil, unsupported(stderr)
	}
	width, err := strconv.Atoi(head[2])
	if err != nil {
		return nil, unsupported(stderr)
	}
	height, err := strconv.Atoi(head[3])
	if err != nil {
		return nil, unsupported(stderr)
	}
	size, err := ParseSize(head[4])
	if err != nil {
		return nil, unsupported(stderr)
	}
	densityX, err := strconv.ParseFloat(head[5], 64)
	if err != nil {
		return nil, unsupported(stderr)
	}
	densityY, err := strconv.ParseFloat(head[6], 64)
	if err != nil {
		return nil, unsupported(stderr)
	}

	info := &ImageInfo{
		Type:    strings.ToLower(head[0]),
		Depth:   depth,
		Width:   width,
		Height:  height,
		Size:    size,
		Density: Density{X: densityX, Y: densityY},
		Name:    strings.TrimSpace(strings.Join(name, " ")),
		Path:    path,
	}
	if stderr != "" {
		info.Warnings = strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	}
	return info, nil
}

func unsupported(stderr string) error {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, msg)
	}
	return ErrUnsupportedFile
}

var sizePattern = regexp.MustCompile(`^(\d*\.?\d*)([KMGTP]?)(i?)B?$`)

// ParseSize converts an identify size string such as "12345B", "1.5KB",
// "2.1MiB" or GraphicsMagick's "1.5Ki" to bytes. Plain prefixes are decimal
// (1 KB = 1000 B); the "i" forms are binary (1 KiB = 1024 B).
func ParseSize(s string) (float64, error) {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[1] == "" || m[1] == "." {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	base := 1000.0
	if m[3] == "i" {
		base = 1024.0
	}
	multiplier := 1.0
	if m[2] != "" {
		for i := 0; i <= strings.Index("KMGTP", m[2]); i++ {
			multiplier *= base
		}
	}
	return value * multiplier, nil
}
