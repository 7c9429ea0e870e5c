package podwork_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/podwork"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/dispenser"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/messaging/memory"
)

type recorder struct {
	mu      sync.Mutex
	callIDs []string
	meta    map[string]interface{}
}

func (r *recorder) Execute(_ context.Context, activation *model.Activation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callIDs = append(r.callIDs, activation.Job.CallIDs...)
	return nil
}

func (r *recorder) Metadata(context.Context) (map[string]interface{}, error) {
	return r.meta, nil
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := append([]string(nil), r.callIDs...)
	sort.Strings(ret)
	return ret
}

func encode(t *testing.T, job *model.Job) string {
	encoded, err := job.Encode()
	require.NoError(t, err)
	return encoded
}

func TestService_RunJob(t *testing.T) {
	server := httptest.NewServer(dispenser.NewServer(dispenser.New(), 0).Handler())
	defer server.Close()

	cfg := podwork.DefaultConfig()
	cfg.Client.MasterAddress = server.URL
	exec := &recorder{}
	srv, err := podwork.New(cfg, podwork.WithExecutor(exec))
	require.NoError(t, err)

	job := &model.Job{
		JobKey:         "job-1",
		TotalCalls:     5,
		ChunkSize:      2,
		CallIDs:        []string{"00000", "00001", "00002", "00003", "00004"},
		DataByteRanges: []model.ByteRange{{0, 9}, {10, 19}, {20, 29}, {30, 39}, {40, 49}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	count, err := srv.RunJob(ctx, encode(t, job))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, job.CallIDs, exec.sorted())

	_, err = srv.RunJob(ctx, "not base64!")
	assert.ErrorIs(t, err, model.ErrInvalidPayload)
}

func TestService_RunJob_NoMaster(t *testing.T) {
	cfg := podwork.DefaultConfig()
	cfg.Client.MasterAddress = ""
	srv, err := podwork.New(cfg, podwork.WithExecutor(&recorder{}))
	require.NoError(t, err)
	_, err = srv.RunJob(context.Background(), encode(t, &model.Job{JobKey: "x", TotalCalls: 1, CallIDs: []string{"00000"}}))
	assert.Error(t, err)
}

func TestService_ExtractMetadata(t *testing.T) {
	cfg := podwork.DefaultConfig()
	cfg.Storage.BaseURL = t.TempDir()
	srv, err := podwork.New(cfg, podwork.WithExecutor(&recorder{meta: map[string]interface{}{"lithops_version": "3.0"}}))
	require.NoError(t, err)

	ctx := context.Background()
	key, err := srv.ExtractMetadata(ctx, encode(t, &model.Job{RuntimeName: "python311", LogLevel: "DEBUG"}))
	require.NoError(t, err)
	data, err := afs.New().DownloadWithURL(ctx, key)
	require.NoError(t, err)
	meta := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "3.0", meta["lithops_version"])
}

func TestService_PushProtocol(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	broker := memory.NewBroker(memory.DefaultConfig())
	defer broker.Close()

	exec := &recorder{}
	newService := func(processes, expectedPods int) *podwork.Service {
		cfg := podwork.DefaultConfig()
		cfg.Broker.Vendor = messaging.VendorMemory
		cfg.Pod.Processes = processes
		cfg.Allocator.ExpectedPods = expectedPods
		srv, err := podwork.New(cfg, podwork.WithBroker(broker), podwork.WithExecutor(exec))
		require.NoError(t, err)
		return srv
	}

	podCtx, stopPods := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, processes := range []int{1, 2} {
		srv := newService(processes, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, srv.RunPod(podCtx))
		}()
	}

	master := newService(1, 2)
	assignments, err := master.RunAllocator(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	total := 0
	for _, assignment := range assignments {
		total += assignment.PodRange().PodCPUs()
	}
	assert.Equal(t, 3, total)

	// pods subscribe before announcing, so every pod already listens here
	job := &model.Job{JobKey: "push-1", TotalCalls: 7}
	for i := 0; i < job.TotalCalls; i++ {
		job.CallIDs = append(job.CallIDs, "0000"+string(rune('0'+i)))
		job.DataByteRanges = append(job.DataByteRanges, model.ByteRange{int64(i * 10), int64(i*10 + 9)})
	}
	require.NoError(t, master.Broadcast(ctx, encode(t, job)))

	require.Eventually(t, func() bool { return len(exec.sorted()) == job.TotalCalls }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, job.CallIDs, exec.sorted())
	stopPods()
	wg.Wait()
	assert.NoError(t, master.Close())
}

func TestNew_Config(t *testing.T) {
	cfg := podwork.DefaultConfig()
	cfg.Pod.Processes = 0
	_, err := podwork.New(cfg)
	assert.Error(t, err)

	srv, err := podwork.New(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, srv.Config().Master.Port)
}
