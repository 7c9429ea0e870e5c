// Package amqp implements messaging.Broker on top of an AMQP 0-9-1 server
// such as RabbitMQ.
package amqp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/viant/podwork/service/messaging"
)

// Config holds AMQP connection settings
type Config struct {
	URL      string
	Prefetch int
}

// Validate checks that URL is an amqp(s) URL
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("amqp url was empty")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid amqp url: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "amqp" && scheme != "amqps" {
		return fmt.Errorf("unsupported amqp url scheme: %q", u.Scheme)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch was negative: %d", c.Prefetch)
	}
	return nil
}

// Broker is a messaging.Broker backed by a single AMQP connection and channel.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	closed  bool
}

// NewBroker dials the server and opens a channel
func NewBroker(config Config) (*Broker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", redact(config.URL), err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if config.Prefetch > 0 {
		if err := channel.Qos(config.Prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	return &Broker{conn: conn, channel: channel}, nil
}

// Queue declares a non-durable named queue and starts consuming from it
func (b *Broker) Queue(_ context.Context, name string) (messaging.Queue[messaging.Body], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, messaging.ErrClosed
	}
	if err := b.declare(name); err != nil {
		return nil, err
	}
	return b.consumer(name)
}

// Declare declares a non-durable named queue
func (b *Broker) Declare(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return messaging.ErrClosed
	}
	return b.declare(name)
}

// Publish sends body to queue through the default exchange; the queue is not
// declared, so it may be another connection's exclusive queue.
func (b *Broker) Publish(ctx context.Context, queue string, body *messaging.Body) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return messaging.ErrClosed
	}
	return b.publish(ctx, "", queue, *body)
}

// ExclusiveQueue declares a server-named exclusive queue
func (b *Broker) ExclusiveQueue(_ context.Context) (string, messaging.Queue[messaging.Body], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", nil, messaging.ErrClosed
	}
	q, err := b.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to declare exclusive queue: %w", err)
	}
	queue, err := b.consumer(q.Name)
	return q.Name, queue, err
}

// Subscribe binds an exclusive queue to the fanout exchange
func (b *Broker) Subscribe(_ context.Context, exchange string) (messaging.Queue[messaging.Body], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, messaging.ErrClosed
	}
	if err := b.declareExchange(exchange); err != nil {
		return nil, err
	}
	q, err := b.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare subscriber queue: %w", err)
	}
	if err := b.channel.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind %s to %s: %w", q.Name, exchange, err)
	}
	return b.consumer(q.Name)
}

// Broadcast publishes body on the fanout exchange
func (b *Broker) Broadcast(ctx context.Context, exchange string, body *messaging.Body) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return messaging.ErrClosed
	}
	if err := b.declareExchange(exchange); err != nil {
		return err
	}
	return b.publish(ctx, exchange, "", *body)
}

// Close closes the channel and the connection
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	_ = b.channel.Close()
	return b.conn.Close()
}

func (b *Broker) declare(name string) error {
	if _, err := b.channel.QueueDeclare(name, false, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

func (b *Broker) declareExchange(name string) error {
	if err := b.channel.ExchangeDeclare(name, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

func (b *Broker) publish(ctx context.Context, exchange, key string, body []byte) error {
	err := b.channel.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %q/%q: %w", exchange, key, err)
	}
	return nil
}

// consumer starts delivery for queue; caller holds b.mu.
func (b *Broker) consumer(queue string) (*Queue, error) {
	deliveries, err := b.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", queue, err)
	}
	return &Queue{broker: b, name: queue, deliveries: deliveries}, nil
}

// Queue is a named AMQP queue with an active consumer.
type Queue struct {
	broker     *Broker
	name       string
	deliveries <-chan amqp.Delivery
}

// Publish sends t to the queue through the default exchange
func (q *Queue) Publish(ctx context.Context, t *messaging.Body) error {
	q.broker.mu.Lock()
	defer q.broker.mu.Unlock()
	if q.broker.closed {
		return messaging.ErrClosed
	}
	return q.broker.publish(ctx, "", q.name, *t)
}

// Consume waits for the next delivery
func (q *Queue) Consume(ctx context.Context) (messaging.Message[messaging.Body], error) {
	select {
	case d, ok := <-q.deliveries:
		if !ok {
			return nil, messaging.ErrClosed
		}
		body := messaging.Body(d.Body)
		return &Message{delivery: d, body: &body}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Message wraps an AMQP delivery
type Message struct {
	delivery amqp.Delivery
	body     *messaging.Body
}

// T returns the delivery body
func (m *Message) T() *messaging.Body { return m.body }

// Ack acknowledges the delivery
func (m *Message) Ack() error { return m.delivery.Ack(false) }

// Nack rejects the delivery and requeues it unless it was already redelivered
func (m *Message) Nack(error) error { return m.delivery.Nack(false, !m.delivery.Redelivered) }

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

var _ messaging.Broker = (*Broker)(nil)
var _ messaging.Queue[messaging.Body] = (*Queue)(nil)
