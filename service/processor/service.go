package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/internal/clock"
	"github.com/viant/podwork/internal/idgen"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/progress"
	"github.com/viant/podwork/service/executor"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/messaging/memory"
	"github.com/viant/podwork/tracing"
)

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of concurrently running activations
	WorkerCount int

	// QueueBuffer bounds the in-memory admission queue
	QueueBuffer int
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 1,
		QueueBuffer: 1024,
	}
}

// Service is a fixed-size pool of workers running activations.
type Service struct {
	config   Config
	queue    messaging.Queue[model.Activation]
	executor executor.Service

	running int64
	mu      sync.Mutex
	batches map[string]*batch

	started  bool
	workers  []*worker
	workerWg sync.WaitGroup
}

type batch struct {
	ctx     context.Context
	tracker *progress.Progress
	wg      sync.WaitGroup
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a processor
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:  DefaultConfig(),
		batches: make(map[string]*batch),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if s.config.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be > 0, got %d", s.config.WorkerCount)
	}
	if s.queue == nil {
		queueConfig := memory.DefaultConfig()
		queueConfig.QueueBuffer = s.config.QueueBuffer
		queueConfig.DeadLetter = false
		s.queue = memory.NewQueue[model.Activation](queueConfig)
	}
	return s, nil
}

// Workers returns the pool size
func (s *Service) Workers() int {
	return s.config.WorkerCount
}

// RunningCount returns the number of activations currently executing
func (s *Service) RunningCount() int {
	return int(atomic.LoadInt64(&s.running))
}

// Start launches the workers; they stop when ctx is done or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// Run admits activations into the pool and blocks until every one finished.
// The tracker, or the one carried by ctx when nil, is updated as activations
// move through the pool. Cancelling ctx stops waiting and is handed to every activation of the batch.
func (s *Service) Run(ctx context.Context, activations []*model.Activation, tracker *progress.Progress) error {
	if len(activations) == 0 {
		return nil
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("processor not started")
	}
	if tracker == nil {
		tracker, _ = progress.FromContext(ctx)
	}
	b := &batch{ctx: ctx, tracker: tracker}
	batchID := idgen.New()
	s.batches[batchID] = b
	s.mu.Unlock()

	tracker.Update(progress.Delta{Total: len(activations), Pending: len(activations)})
	b.wg.Add(len(activations))
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		s.release(batchID)
		close(done)
	}()
	for i, activation := range activations {
		activation.BatchID = batchID
		if err := s.queue.Publish(ctx, activation); err != nil {
			skipped := len(activations) - i
			tracker.Update(progress.Delta{Pending: -skipped, Failed: skipped})
			for j := 0; j < skipped; j++ {
				b.wg.Done()
			}
			return fmt.Errorf("failed to admit activation %s: %w", activation.ID, err)
		}
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release(batchID string) {
	s.mu.Lock()
	delete(s.batches, batchID)
	s.mu.Unlock()
}

func (s *Service) lookup(batchID string) *batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[batchID]
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) || w.ctx.Err() != nil {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		w.service.process(msg)
	}
}

// process runs one activation. Engine failures are reported through the
// tracker and metrics; the message is always acknowledged.
func (s *Service) process(msg messaging.Message[model.Activation]) {
	activation := msg.T()
	b := s.lookup(activation.BatchID)
	ctx := context.Background()
	var tracker *progress.Progress
	if b != nil {
		ctx, tracker = b.ctx, b.tracker
		defer b.wg.Done()
	}
	defer func() { _ = msg.Ack() }()

	atomic.AddInt64(&s.running, 1)
	runningGauge.Inc()
	tracker.Update(progress.Delta{Pending: -1, Running: 1})

	started := clock.Now()
	err := s.execute(ctx, activation)
	elapsed := clock.Since(started)
	activationTimer.Update(elapsed)

	atomic.AddInt64(&s.running, -1)
	runningGauge.Dec()

	entry := logrus.WithFields(logrus.Fields{
		"activation": activation.ID,
		"index":      activation.Index,
		"elapsed":    elapsed,
	})
	if err != nil {
		activationCounter.WithValues("failed").Inc()
		tracker.Update(progress.Delta{Running: -1, Failed: 1})
		entry.WithError(err).Error("activation failed")
		return
	}
	activationCounter.WithValues("completed").Inc()
	tracker.Update(progress.Delta{Running: -1, Completed: 1})
	entry.Info("activation finished")
}

func (s *Service) execute(ctx context.Context, activation *model.Activation) (err error) {
	ctx, span := tracing.StartSpan(ctx, "processor.execute", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"activation.id": activation.ID, "activation.backend": activation.Backend})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activation %s panicked: %v", activation.ID, r)
		}
	}()
	return s.executor.Execute(ctx, activation)
}

// Shutdown stops the workers and waits for running activations to return
func (s *Service) Shutdown() {
	s.mu.Lock()
	workers := s.workers
	s.workers = nil
	s.mu.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}
