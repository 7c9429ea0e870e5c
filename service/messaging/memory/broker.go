package memory

import (
	"context"
	"sync"

	"github.com/viant/podwork/internal/idgen"
	"github.com/viant/podwork/service/messaging"
)

// Broker is an in-process messaging.Broker. Every pod sharing the same Broker
// instance sees the same queues and exchanges.
type Broker struct {
	config    Config
	mu        sync.RWMutex
	queues    map[string]*Queue[messaging.Body]
	exchanges map[string][]*Queue[messaging.Body]
	closed    bool
}

// NewBroker creates an in-process broker; config applies to every queue it declares.
func NewBroker(config Config) *Broker {
	return &Broker{
		config:    config,
		queues:    make(map[string]*Queue[messaging.Body]),
		exchanges: make(map[string][]*Queue[messaging.Body]),
	}
}

// Queue declares (or attaches to) the named queue
func (b *Broker) Queue(_ context.Context, name string) (messaging.Queue[messaging.Body], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, messaging.ErrClosed
	}
	return b.declare(name), nil
}

// Declare makes sure the named queue exists
func (b *Broker) Declare(ctx context.Context, name string) error {
	_, err := b.Queue(ctx, name)
	return err
}

// Publish sends body to the named queue, declaring it when missing
func (b *Broker) Publish(ctx context.Context, queue string, body *messaging.Body) error {
	q, err := b.Queue(ctx, queue)
	if err != nil {
		return err
	}
	return q.Publish(ctx, body)
}

// ExclusiveQueue declares a uniquely named queue
func (b *Broker) ExclusiveQueue(ctx context.Context) (string, messaging.Queue[messaging.Body], error) {
	name := "amq.gen-" + idgen.New()
	queue, err := b.Queue(ctx, name)
	return name, queue, err
}

// Subscribe binds a fresh private queue to the exchange
func (b *Broker) Subscribe(_ context.Context, exchange string) (messaging.Queue[messaging.Body], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, messaging.ErrClosed
	}
	queue := NewQueue[messaging.Body](b.config)
	b.exchanges[exchange] = append(b.exchanges[exchange], queue)
	return queue, nil
}

// Broadcast publishes a copy of body to every subscriber; with no subscribers
// the message is dropped, as with an unbound fan-out exchange.
func (b *Broker) Broadcast(ctx context.Context, exchange string, body *messaging.Body) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return messaging.ErrClosed
	}
	subscribers := append([]*Queue[messaging.Body](nil), b.exchanges[exchange]...)
	b.mu.RUnlock()
	for _, queue := range subscribers {
		data := append(messaging.Body(nil), *body...)
		if err := queue.Publish(ctx, &data); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every queue owned by the broker
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, queue := range b.queues {
		queue.Close()
	}
	for _, queues := range b.exchanges {
		for _, queue := range queues {
			queue.Close()
		}
	}
	return nil
}

func (b *Broker) declare(name string) *Queue[messaging.Body] {
	if queue, ok := b.queues[name]; ok {
		return queue
	}
	queue := NewQueue[messaging.Body](b.config)
	b.queues[name] = queue
	return queue
}

// ensure Broker implements messaging.Broker interface
var _ messaging.Broker = (*Broker)(nil)
