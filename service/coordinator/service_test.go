package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/messaging/memory"
)

func TestService_AnnounceAndWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	broker := memory.NewBroker(memory.DefaultConfig())
	defer broker.Close()

	srv := New(broker, "requests")
	_, ok := srv.Range()
	assert.False(t, ok)
	require.NoError(t, srv.Announce(ctx, 3))

	raw, err := broker.Queue(ctx, "requests")
	require.NoError(t, err)
	msg, err := messaging.NewJSONQueue[model.Announcement](raw).Consume(ctx)
	require.NoError(t, err)
	announcement := *msg.T()
	assert.Equal(t, 3, announcement.NumCPUs)
	assert.NotEmpty(t, announcement.ReplyQueue)

	replies := []model.Assignment{
		{RangeStart: 4, RangeEnd: 2, TotalCPUs: 8},
		{RangeStart: 2, RangeEnd: 4, TotalCPUs: 8},
		{RangeStart: 5, RangeEnd: 7, TotalCPUs: 8},
	}
	for i := range replies {
		require.NoError(t, messaging.PublishJSON(ctx, broker, announcement.ReplyQueue, &replies[i]))
	}
	r, err := srv.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PodRange{RangeStart: 2, RangeEnd: 4, TotalCPUs: 8}, r)

	time.Sleep(20 * time.Millisecond)
	r, ok = srv.Range()
	assert.True(t, ok)
	assert.Equal(t, 2, r.RangeStart)
}

func TestService_Wait_Cancelled(t *testing.T) {
	broker := memory.NewBroker(memory.DefaultConfig())
	defer broker.Close()
	srv := New(broker, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := srv.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Error(t, srv.Announce(context.Background(), 0))
}
