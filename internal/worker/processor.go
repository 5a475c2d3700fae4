package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
)

// Operator runs one image operation. *magick.Client satisfies it.
type Operator interface {
	Apply(ctx context.Context, op magick.Operation, o magick.Options) (string, error)
}

// ProcessorConfig tunes a Processor.
type ProcessorConfig struct {
	// WorkDir holds one scratch directory per job.
	WorkDir string

	// Concurrency bounds the outputs of one job processed at once.
	Concurrency int

	// PresignTTL is how long output URLs stay valid.
	PresignTTL time.Duration
}

// Processor runs jobs: download the source, derive every output, upload the
// results and report progress.
type Processor struct {
	operator  Operator
	store     ObjectStore
	publisher Publisher
	cfg       ProcessorConfig
	logger    *slog.Logger
}

// NewProcessor wires a Processor.
func NewProcessor(operator Operator, store ObjectStore, publisher Publisher, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		operator:  operator,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs job to completion. A failure is published as FAILED and
// returned as a *ProcessingError that says whether to requeue.
//
// A job interrupted by the cancellation of ctx is not reported as FAILED; it
// is returned for requeueing so that another worker can pick it up.
func (p *Processor) Process(ctx context.Context, job *Job) error {
	log := p.logger.With("job", job.ID, "operation", job.Operation)
	p.publish(ctx, log, Status{JobID: job.ID, State: StateProcessing})

	outputs, err := p.run(ctx, log, job)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("job interrupted", "error", err)
			return &ProcessingError{Err: err, Requeue: true}
		}
		log.Error("job failed", "error", err)
		p.publish(ctx, log, Status{
			JobID:     job.ID,
			State:     StateFailed,
			ErrorKind: string(kindOf(err)),
			Error:     err.Error(),
		})
		return &ProcessingError{Err: err, Requeue: requeue(err)}
	}

	p.publish(ctx, log, Status{JobID: job.ID, State: StateProcessed, Outputs: outputs})
	log.Info("job processed", "outputs", len(outputs))

	if job.DeleteSource {
		if err := p.store.Delete(ctx, job.SourceKey); err != nil {
			log.Warn("failed to delete source", "key", job.SourceKey, "error", err)
		}
	}
	return nil
}

func (p *Processor) run(ctx context.Context, log *slog.Logger, job *Job) ([]OutputStatus, error) {
	if err := os.MkdirAll(p.cfg.WorkDir, 0o755); err != nil {
		return nil, &magick.DirectoryError{Dir: p.cfg.WorkDir, Err: err}
	}
	// Jobs sharing an id still get separate directories.
	dir, err := os.MkdirTemp(p.cfg.WorkDir, "job-*")
	if err != nil {
		return nil, &magick.DirectoryError{Dir: p.cfg.WorkDir, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove work dir", "dir", dir, "error", err)
		}
	}()

	if err := os.Mkdir(filepath.Join(dir, "out"), 0o755); err != nil {
		return nil, &magick.DirectoryError{Dir: dir, Err: err}
	}

	src := filepath.Join(dir, "source"+path.Ext(job.SourceKey))
	if err := p.store.Download(ctx, job.SourceKey, src); err != nil {
		return nil, err
	}

	results := make([]OutputStatus, len(job.Outputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, out := range job.Outputs {
		i, out := i, out
		g.Go(func() error {
			opts := out.Options
			opts.Src = src
			opts.Dst = filepath.Join(dir, "out", strconv.Itoa(i)+path.Ext(out.Key))

			if _, err := p.operator.Apply(gctx, job.Operation, opts); err != nil {
				return fmt.Errorf("output %s: %w", out.Key, err)
			}
			if err := p.store.Upload(gctx, out.Key, opts.Dst); err != nil {
				return err
			}
			url, err := p.store.Presign(gctx, out.Key, p.cfg.PresignTTL)
			if err != nil {
				return err
			}
			results[i] = OutputStatus{Key: out.Key, URL: url}
			log.Debug("output uploaded", "key", out.Key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// publish reports status; a lost status message does not fail the job.
func (p *Processor) publish(ctx context.Context, log *slog.Logger, status Status) {
	if err := p.publisher.Publish(ctx, status); err != nil {
		log.Warn("failed to publish status", "state", status.State, "error", err)
	}
}
