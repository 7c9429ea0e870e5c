package allocator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/coordinator"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/messaging/memory"
)

func TestAssign(t *testing.T) {
	testCases := []struct {
		description string
		cpus        []int
	}{
		{description: "single pod", cpus: []int{4}},
		{description: "uneven pods", cpus: []int{2, 3, 1}},
		{description: "many single cpu pods", cpus: []int{1, 1, 1, 1, 1}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			var announcements []model.Announcement
			total := 0
			for _, cpus := range testCase.cpus {
				announcements = append(announcements, model.Announcement{NumCPUs: cpus, ReplyQueue: "q"})
				total += cpus
			}
			assignments := Assign(announcements)
			require.Len(t, assignments, len(testCase.cpus))

			owners := make([]int, total)
			for i, assignment := range assignments {
				r := assignment.PodRange()
				assert.NoError(t, r.Validate())
				assert.Equal(t, testCase.cpus[i], r.PodCPUs())
				for slot := r.RangeStart; slot <= r.RangeEnd; slot++ {
					owners[slot]++
				}
			}
			for slot, count := range owners {
				assert.Equal(t, 1, count, "slot %d", slot)
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	broker := memory.NewBroker(memory.DefaultConfig())
	defer broker.Close()

	cpus := []int{2, 3}
	var pods []*coordinator.Service
	for _, n := range cpus {
		pod := coordinator.New(broker, "")
		require.NoError(t, pod.Announce(ctx, n))
		pods = append(pods, pod)
	}
	garbage := messaging.Body("{}")
	require.NoError(t, broker.Publish(ctx, "id-assignation", &garbage))

	srv := New(broker, Config{ExpectedPods: 2})
	assignments, err := srv.Run(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	var ranges []model.PodRange
	for _, pod := range pods {
		r, err := pod.Wait(ctx)
		require.NoError(t, err)
		ranges = append(ranges, r)
	}
	assert.Equal(t, []model.PodRange{
		{RangeStart: 0, RangeEnd: 1, TotalCPUs: 5},
		{RangeStart: 2, RangeEnd: 4, TotalCPUs: 5},
	}, ranges)
}

func TestService_Run_Timeout(t *testing.T) {
	broker := memory.NewBroker(memory.DefaultConfig())
	defer broker.Close()
	srv := New(broker, Config{ExpectedPods: 1, Timeout: 20 * time.Millisecond})
	_, err := srv.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_Broadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	broker := memory.NewBroker(memory.DefaultConfig())
	defer broker.Close()
	raw, err := broker.Subscribe(ctx, "lithops")
	require.NoError(t, err)

	job := &model.Job{JobKey: "job-1", TotalCalls: 2, CallIDs: []string{"0", "1"}}
	require.NoError(t, New(broker, Config{}).Broadcast(ctx, job))

	msg, err := messaging.NewJSONQueue[model.Broadcast](raw).Consume(ctx)
	require.NoError(t, err)
	decoded, err := model.DecodeJob(msg.T().Payload)
	require.NoError(t, err)
	assert.Equal(t, "job-1", decoded.JobKey)
	assert.Equal(t, []string{"0", "1"}, decoded.CallIDs)
}
