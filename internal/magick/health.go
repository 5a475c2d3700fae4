package magick

import (
	"context"
	"fmt"
	"strings"
)

// Health is the outcome of CheckInstalled.
type Health struct {
	Backend   Backend `json:"backend"`
	Installed bool    `json:"installed"`
	Version   string  `json:"version,omitempty"`
}

// CheckInstalled asks the backend for its version. Hosts call it once at
// startup to report a missing tool early; operations do not depend on it.
func (c *Client) CheckInstalled(ctx context.Context) (*Health, error) {
	backend := c.Backend()
	action, args := "convert", []string{"-version"}
	if backend == GraphicsMagick {
		action, args = "version", nil
	}

	health := &Health{Backend: backend}
	stdout, _, err := c.invoker.Run(ctx, action, args, 0)
	if err != nil {
		return health, fmt.Errorf("%s not found: %w", backend.displayName(), err)
	}
	health.Installed = true
	health.Version = firstVersionLine(stdout)
	return health, nil
}

func firstVersionLine(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	line = strings.TrimSpace(line)
	return strings.TrimPrefix(line, "Version: ")
}

func (b Backend) displayName() string {
	if b == GraphicsMagick {
		return "GraphicsMagick"
	}
	return "ImageMagick"
}
