package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/podwork/service/messaging"
)

func TestBroker_NamedQueue(t *testing.T) {
	broker := NewBroker(DefaultConfig())
	defer broker.Close()
	ctx := context.Background()

	producer, err := broker.Queue(ctx, "requests")
	require.NoError(t, err)
	consumer, err := broker.Queue(ctx, "requests")
	require.NoError(t, err)

	body := messaging.Body("hello")
	require.NoError(t, producer.Publish(ctx, &body))
	msg, err := consumer.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(*msg.T()))
	assert.NoError(t, msg.Ack())

	name1, _, err := broker.ExclusiveQueue(ctx)
	require.NoError(t, err)
	name2, _, err := broker.ExclusiveQueue(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, name1, name2)
}

func TestBroker_Fanout(t *testing.T) {
	broker := NewBroker(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	body := messaging.Body("lost")
	require.NoError(t, broker.Broadcast(ctx, "jobs", &body), "broadcast without subscribers is dropped")

	var subscribers []messaging.Queue[messaging.Body]
	for i := 0; i < 3; i++ {
		sub, err := broker.Subscribe(ctx, "jobs")
		require.NoError(t, err)
		subscribers = append(subscribers, sub)
	}
	body = messaging.Body("job-1")
	require.NoError(t, broker.Broadcast(ctx, "jobs", &body))

	for _, sub := range subscribers {
		msg, err := sub.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, "job-1", string(*msg.T()))
	}

	require.NoError(t, broker.Close())
	_, err := subscribers[0].Consume(ctx)
	assert.ErrorIs(t, err, messaging.ErrClosed)
	assert.ErrorIs(t, broker.Broadcast(ctx, "jobs", &body), messaging.ErrClosed)
}
