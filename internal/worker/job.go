package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
)

// ErrInvalidJob is returned for messages that can never be processed.
var ErrInvalidJob = errors.New("invalid job")

// Job is one queue message: a source object and the outputs to derive from it.
type Job struct {
	ID        string           `json:"id"`
	Operation magick.Operation `json:"operation"`
	SourceKey string           `json:"sourceKey"`
	Outputs   []Output         `json:"outputs"`

	// DeleteSource removes the source object once every output is uploaded.
	DeleteSource bool `json:"deleteSource,omitempty"`
}

// Output is a single derived object. Options.Src and Options.Dst are
// replaced by local paths before the operation runs.
type Output struct {
	Key     string         `json:"key"`
	Options magick.Options `json:"options"`
}

// DecodeJob parses and checks a message body. A job without an id gets a
// fresh UUID.
func DecodeJob(body []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if !validID(job.ID) {
		return &job, fmt.Errorf("%w: id %q must be a single path element", ErrInvalidJob, job.ID)
	}

	op, err := magick.ParseOperation(string(job.Operation))
	if err != nil {
		return &job, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	job.Operation = op

	if job.SourceKey == "" {
		return &job, fmt.Errorf("%w: sourceKey is required", ErrInvalidJob)
	}
	if len(job.Outputs) == 0 {
		return &job, fmt.Errorf("%w: at least one output is required", ErrInvalidJob)
	}
	seen := make(map[string]bool, len(job.Outputs))
	for i, out := range job.Outputs {
		if out.Key == "" {
			return &job, fmt.Errorf("%w: output %d has no key", ErrInvalidJob, i)
		}
		if seen[out.Key] {
			return &job, fmt.Errorf("%w: duplicate output key %q", ErrInvalidJob, out.Key)
		}
		if out.Key == job.SourceKey {
			return &job, fmt.Errorf("%w: output %q would overwrite the source", ErrInvalidJob, out.Key)
		}
		seen[out.Key] = true
	}
	return &job, nil
}

// validID reports whether id can name a file: no separators, no dot
// segments, no control characters.
func validID(id string) bool {
	if len(id) > 128 || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return filepath.IsLocal(id)
}

// State is the lifecycle stage reported on the status exchange.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateProcessed  State = "PROCESSED"
	StateFailed     State = "FAILED"
)

// Status is the message published for every state change of a job.
type Status struct {
	JobID     string         `json:"jobId"`
	State     State          `json:"state"`
	Outputs   []OutputStatus `json:"outputs,omitempty"`
	ErrorKind string         `json:"errorKind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Time      time.Time      `json:"time"`
}

// OutputStatus points at an uploaded output.
type OutputStatus struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
