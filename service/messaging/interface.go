package messaging

import (
	"context"
	"errors"
)

// Vendor represents the name of a messaging vendor
type Vendor string

const (
	VendorMemory Vendor = "memory"
	VendorFs     Vendor = "fs"
	VendorAMQP   Vendor = "amqp"
)

// ErrClosed is returned by queues whose broker has been closed.
var ErrClosed = errors.New("messaging: broker closed")

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}

// Body is a raw message body exchanged through a Broker.
type Body []byte

// Broker exposes the topology used by the push protocol: named work queues,
// private reply queues and fan-out exchanges.
type Broker interface {
	// Queue declares (or attaches to) the named point-to-point queue and
	// returns it for consuming and publishing.
	Queue(ctx context.Context, name string) (Queue[Body], error)

	// Declare makes sure the named shared queue exists without consuming from it.
	Declare(ctx context.Context, name string) error

	// Publish sends body to the named queue without consuming from it; this is
	// how replies reach another party's exclusive queue.
	Publish(ctx context.Context, queue string, body *Body) error

	// ExclusiveQueue declares a queue private to the caller and returns its name,
	// so that it can be used as a reply address.
	ExclusiveQueue(ctx context.Context) (string, Queue[Body], error)

	// Subscribe binds a new private queue to the fan-out exchange; every message
	// broadcast after the call is delivered to it.
	Subscribe(ctx context.Context, exchange string) (Queue[Body], error)

	// Broadcast delivers body to every subscriber of the exchange.
	Broadcast(ctx context.Context, exchange string, body *Body) error

	// Close releases broker resources.
	Close() error
}
