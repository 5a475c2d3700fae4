package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher announces job state changes.
type Publisher interface {
	Publish(ctx context.Context, status Status) error
}

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned by AMQPPublisher before a channel is bound.
var ErrNotConnected = errors.New("status channel is not connected")

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes Status messages as JSON to a direct exchange. The
// Consumer binds a fresh channel to it after every reconnect.
type AMQPPublisher struct {
	exchange   string
	routingKey string

	mu sync.RWMutex
	ch amqpPublisher
}

// NewAMQPPublisher returns an unbound publisher for exchange and routingKey.
func NewAMQPPublisher(exchange, routingKey string) *AMQPPublisher {
	return &AMQPPublisher{exchange: exchange, routingKey: routingKey}
}

func (p *AMQPPublisher) bind(ch amqpPublisher) {
	p.mu.Lock()
	p.ch = ch
	p.mu.Unlock()
}

// Publish sends status, giving up after five seconds.
func (p *AMQPPublisher) Publish(ctx context.Context, status Status) error {
	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	if status.Time.IsZero() {
		status.Time = time.Now().UTC()
	}
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to serialize status: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    status.JobID,
		Timestamp:    status.Time,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}
