package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobProcessor runs a decoded job. *Processor satisfies it.
type JobProcessor interface {
	Process(ctx context.Context, job *Job) error
}

// ConsumerConfig describes the broker topology.
type ConsumerConfig struct {
	URL            string
	Queue          string
	StatusExchange string

	// Prefetch bounds unacknowledged deliveries, and therefore the number of
	// jobs in flight.
	Prefetch int

	// ReconnectDelay is the pause before dialing again after a failure.
	ReconnectDelay time.Duration
}

// Consumer pulls jobs from a durable queue with manual acknowledgement.
type Consumer struct {
	cfg       ConsumerConfig
	processor JobProcessor
	publisher *AMQPPublisher
	logger    *slog.Logger
}

// NewConsumer returns a consumer that hands deliveries to processor and binds
// publisher to a status channel on every connection.
func NewConsumer(cfg ConsumerConfig, processor JobProcessor, publisher *AMQPPublisher, logger *slog.Logger) *Consumer {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, processor: processor, publisher: publisher, logger: logger}
}

// Run consumes until ctx is done, reconnecting whenever the connection or
// channel is lost. In-flight jobs are finished before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.logger.With("queue", c.cfg.Queue)
	for {
		err := c.session(ctx, log)
		if ctx.Err() != nil {
			log.Info("consumer stopped")
			return nil
		}
		log.Warn("consumer session ended, reconnecting", "error", err, "delay", c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session runs one connection until it breaks or ctx is done.
func (c *Consumer) session(ctx context.Context, log *slog.Logger) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	consumeCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer consumeCh.Close()

	statusCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open status channel: %w", err)
	}
	defer statusCh.Close()

	if err := declareTopology(consumeCh, c.cfg); err != nil {
		return err
	}
	c.publisher.bind(statusCh)
	defer c.publisher.bind(nil)

	deliveries, err := consumeCh.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	log.Info("waiting for jobs", "prefetch", c.cfg.Prefetch)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.handle(ctx, d)
			}()
		}
	}
}

type topology interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
}

func declareTopology(ch topology, cfg ConsumerConfig) error {
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.ExchangeDeclare(cfg.StatusExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.StatusExchange, err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	return nil
}

// handle decodes and processes one delivery, then settles it.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With("delivery", d.DeliveryTag)

	job, err := DecodeJob(d.Body)
	if err != nil {
		log.Error("rejecting job", "error", err)
		if job != nil {
			status := Status{JobID: job.ID, State: StateFailed, ErrorKind: string(KindInvalidJob), Error: err.Error()}
			if pubErr := c.publisher.Publish(ctx, status); pubErr != nil {
				log.Warn("failed to publish status", "error", pubErr)
			}
		}
		c.settle(log, d, false, false)
		return
	}

	err = c.processor.Process(ctx, job)
	if err == nil {
		c.settle(log, d, true, false)
		return
	}
	var procErr *ProcessingError
	retry := errors.As(err, &procErr) && procErr.Requeue
	c.settle(log, d, false, retry)
}

func (c *Consumer) settle(log *slog.Logger, d amqp.Delivery, ack, requeue bool) {
	var err error
	if ack {
		err = d.Ack(false)
	} else {
		err = d.Nack(false, requeue)
	}
	if err != nil {
		log.Warn("failed to settle delivery", "ack", ack, "requeue", requeue, "error", err)
	}
}
