package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	downloadErr error
	uploadErr   error
	deleted     []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Download(_ context.Context, key, dst string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return &StorageError{Op: "download", Key: key, Err: ErrObjectNotFound}
	}
	return os.WriteFile(dst, data, 0o644)
}

func (s *memStore) Upload(_ context.Context, key, src string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return nil
}

func (s *memStore) Presign(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://bucket.example/%s?ttl=%s", key, ttl), nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStore) object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// recordingPublisher keeps every published status.
type recordingPublisher struct {
	mu       sync.Mutex
	statuses []Status
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, status Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
	return p.err
}

func (p *recordingPublisher) states() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	var states []State
	for _, s := range p.statuses {
		states = append(states, s.State)
	}
	return states
}

func (p *recordingPublisher) last() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[len(p.statuses)-1]
}

// copyOperator stands in for magick.Client: it copies src to dst, prefixed
// with the operation name and width, and tracks how many calls overlap.
type copyOperator struct {
	err     error
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (o *copyOperator) Apply(_ context.Context, op magick.Operation, opts magick.Options) (string, error) {
	o.calls.Add(1)
	n := o.running.Add(1)
	defer o.running.Add(-1)
	for {
		peak := o.peak.Load()
		if n <= peak || o.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if o.err != nil {
		return "", o.err
	}
	if err := opts.Validate(op); err != nil {
		return "", err
	}
	src, err := os.ReadFile(opts.Src)
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("%s:%d:%s", op, opts.Width, src)
	return opts.Dst, os.WriteFile(opts.Dst, []byte(out), 0o644)
}

// blockingOperator blocks every call until ctx is done, then fails the way
// the invoker does for a killed process.
type blockingOperator struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingOperator() *blockingOperator {
	return &blockingOperator{started: make(chan struct{})}
}

func (o *blockingOperator) Apply(ctx context.Context, _ magick.Operation, _ magick.Options) (string, error) {
	o.once.Do(func() { close(o.started) })
	<-ctx.Done()
	return "", &magick.ProcessError{
		Action:   "convert",
		ExitCode: -1,
		Err:      fmt.Errorf("%w: signal: killed", ctx.Err()),
	}
}

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

// fakeChannel captures publishes and topology declarations.
type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	exchange  string
	key       string
	err       error

	queues    []string
	exchanges []string
	prefetch  int
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.exchange, c.key = exchange, key
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.queues = append(c.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.exchanges = append(c.exchanges, name+":"+kind)
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

// jobProcessorFunc adapts a function to JobProcessor.
type jobProcessorFunc func(ctx context.Context, job *Job) error

func (f jobProcessorFunc) Process(ctx context.Context, job *Job) error {
	return f(ctx, job)
}
