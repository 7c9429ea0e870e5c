package dispenser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moby/locker"
	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/dao"
)

// Done is returned once every index of a job was dispensed.
const Done = -1

// Service owns the per-job index counters.
type Service struct {
	locks    *locker.Locker
	mu       sync.RWMutex
	counters map[string]int
	store    dao.Service[string, model.Counter]
}

// Option customises the dispenser
type Option func(*Service)

// WithCounterStore persists counters in store
func WithCounterStore(store dao.Service[string, model.Counter]) Option {
	return func(s *Service) {
		s.store = store
	}
}

// New creates a dispenser
func New(options ...Option) *Service {
	s := &Service{
		locks:    locker.New(),
		counters: make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// NextIndex returns the next index of jobKey, or Done when totalCalls indices
// were already handed out. The counter is left unchanged once exhausted.
func (s *Service) NextIndex(ctx context.Context, jobKey string, totalCalls int) (int, error) {
	if jobKey == "" {
		return 0, fmt.Errorf("job key was empty")
	}
	s.locks.Lock(jobKey)
	defer s.locks.Unlock(jobKey)

	next, err := s.load(ctx, jobKey)
	if err != nil {
		return 0, err
	}
	if next >= totalCalls {
		dispensedCounter.WithValues("done").Inc()
		return Done, nil
	}
	if s.store != nil {
		if err := s.store.Save(ctx, &model.Counter{JobKey: jobKey, Next: next + 1}); err != nil {
			return 0, fmt.Errorf("failed to persist counter of %s: %w", jobKey, err)
		}
	}
	s.mu.Lock()
	if _, ok := s.counters[jobKey]; !ok {
		activeJobsGauge.Inc()
	}
	s.counters[jobKey] = next + 1
	s.mu.Unlock()
	dispensedCounter.WithValues("index").Inc()
	return next, nil
}

// Reset forgets the counter of jobKey
func (s *Service) Reset(ctx context.Context, jobKey string) error {
	s.locks.Lock(jobKey)
	defer s.locks.Unlock(jobKey)

	s.mu.Lock()
	if _, ok := s.counters[jobKey]; ok {
		delete(s.counters, jobKey)
		activeJobsGauge.Dec()
	}
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, jobKey); err != nil && !errors.Is(err, dao.ErrNotFound) {
		return fmt.Errorf("failed to delete counter of %s: %w", jobKey, err)
	}
	return nil
}

// Resume loads every persisted counter so that a restarted master continues
// where it left off; it returns the number of resumed jobs.
func (s *Service) Resume(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	counters, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list persisted counters: %w", err)
	}
	for _, counter := range counters {
		s.locks.Lock(counter.JobKey)
		s.mu.Lock()
		if _, ok := s.counters[counter.JobKey]; !ok {
			activeJobsGauge.Inc()
			s.counters[counter.JobKey] = counter.Next
			logrus.WithFields(logrus.Fields{"job_key": counter.JobKey, "next": counter.Next}).Info("resumed persisted counter")
		}
		s.mu.Unlock()
		s.locks.Unlock(counter.JobKey)
	}
	return len(counters), nil
}

// Jobs returns the number of counters held in memory
func (s *Service) Jobs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}

// load returns the counter of jobKey; caller holds the key lock.
func (s *Service) load(ctx context.Context, jobKey string) (int, error) {
	s.mu.RLock()
	next, ok := s.counters[jobKey]
	s.mu.RUnlock()
	if ok || s.store == nil {
		return next, nil
	}
	counter, err := s.store.Load(ctx, jobKey)
	switch {
	case errors.Is(err, dao.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to load counter of %s: %w", jobKey, err)
	}
	logrus.WithFields(logrus.Fields{"job_key": jobKey, "next": counter.Next}).Info("resumed persisted counter")
	return counter.Next, nil
}
