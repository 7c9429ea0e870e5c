package messaging_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/messaging/memory"
)

type announcement struct {
	NumCPUs int `json:"num_cpus"`
}

func TestJSONQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw := memory.NewQueue[messaging.Body](memory.Config{MaxRetries: 0, QueueBuffer: 4})
	queue := messaging.NewJSONQueue[announcement](raw)

	require.NoError(t, queue.Publish(ctx, &announcement{NumCPUs: 3}))
	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, msg.T().NumCPUs)
	assert.NoError(t, msg.Ack())

	garbage := messaging.Body("{not json")
	require.NoError(t, raw.Publish(ctx, &garbage))
	msg, err = queue.Consume(ctx)
	assert.Nil(t, msg)
	assert.Error(t, err)
	assert.Equal(t, 0, raw.Size())
	assert.Equal(t, 0, raw.DLQSize())
}
