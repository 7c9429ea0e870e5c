package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONQueue adapts a raw body queue to typed JSON messages.
type JSONQueue[T any] struct {
	raw Queue[Body]
}

// NewJSONQueue wraps raw so that payloads are JSON encoded on publish and
// decoded on consume.
func NewJSONQueue[T any](raw Queue[Body]) *JSONQueue[T] {
	return &JSONQueue[T]{raw: raw}
}

// Publish encodes t and publishes it on the underlying queue
func (q *JSONQueue[T]) Publish(ctx context.Context, t *T) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	body := Body(data)
	return q.raw.Publish(ctx, &body)
}

// Consume retrieves and decodes a single message. A body that cannot be
// decoded is negatively acknowledged and reported as an error.
func (q *JSONQueue[T]) Consume(ctx context.Context) (Message[T], error) {
	msg, err := q.raw.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	var payload T
	if err := json.Unmarshal(*msg.T(), &payload); err != nil {
		err = fmt.Errorf("failed to unmarshal message: %w", err)
		_ = msg.Nack(err)
		return nil, err
	}
	return &jsonMessage[T]{raw: msg, payload: &payload}, nil
}

type jsonMessage[T any] struct {
	raw     Message[Body]
	payload *T
}

func (m *jsonMessage[T]) T() *T { return m.payload }

func (m *jsonMessage[T]) Ack() error { return m.raw.Ack() }

func (m *jsonMessage[T]) Nack(err error) error { return m.raw.Nack(err) }

// ensure JSONQueue implements Queue interface
var _ Queue[any] = (*JSONQueue[any])(nil)

// PublishJSON encodes v and sends it to the named queue of broker.
func PublishJSON(ctx context.Context, broker Broker, queue string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	body := Body(data)
	return broker.Publish(ctx, queue, &body)
}

// BroadcastJSON encodes v and broadcasts it on the exchange of broker.
func BroadcastJSON(ctx context.Context, broker Broker, exchange string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	body := Body(data)
	return broker.Broadcast(ctx, exchange, &body)
}
