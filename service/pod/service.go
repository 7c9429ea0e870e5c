// Package pod runs the push protocol on a worker pod: it subscribes to job
// broadcasts, obtains its slot range and fans every relevant job out over a
// pod-wide admission gate.
package pod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/coordinator"
	"github.com/viant/podwork/service/executor"
	"github.com/viant/podwork/service/fanout"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/processor"
)

// DefaultExchange is the fan-out exchange jobs are broadcast on.
const DefaultExchange = "lithops"

// Config represents pod configuration
type Config struct {
	Processes    int
	RequestQueue string
	Exchange     string
}

// Service is a push-protocol pod
type Service struct {
	config      Config
	broker      messaging.Broker
	executor    executor.Service
	coordinator *coordinator.Service
}

// New creates a pod
func New(broker messaging.Broker, executor executor.Service, config Config) (*Service, error) {
	if config.Processes <= 0 {
		return nil, fmt.Errorf("processes must be > 0, got %d", config.Processes)
	}
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if config.Exchange == "" {
		config.Exchange = DefaultExchange
	}
	return &Service{
		config:      config,
		broker:      broker,
		executor:    executor,
		coordinator: coordinator.New(broker, config.RequestQueue),
	}, nil
}

// Range returns the slot range once assigned
func (s *Service) Range() (model.PodRange, bool) {
	return s.coordinator.Range()
}

// Run serves broadcasts until ctx is done, then waits for in-flight
// dispatches. The subscription precedes the announcement so that no job
// broadcast after the range assignment can be missed.
func (s *Service) Run(ctx context.Context) error {
	broadcasts, err := s.broker.Subscribe(ctx, s.config.Exchange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Exchange, err)
	}
	if err := s.coordinator.Announce(ctx, s.config.Processes); err != nil {
		return err
	}
	r, err := s.coordinator.Wait(ctx)
	if err != nil {
		return fmt.Errorf("no range assigned: %w", err)
	}

	gate, err := processor.New(processor.WithExecutor(s.executor), processor.WithWorkers(r.PodCPUs()))
	if err != nil {
		return err
	}
	if err := gate.Start(ctx); err != nil {
		return err
	}
	defer gate.Shutdown()
	fan := fanout.New(gate)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		msg, err := broadcasts.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
				return nil
			}
			logrus.WithError(err).Warn("failed to receive broadcast")
			continue
		}
		if msg == nil {
			continue
		}
		job, err := decode(*msg.T())
		_ = msg.Ack()
		if err != nil {
			logrus.WithError(err).Error("dropping malformed broadcast")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fan.Dispatch(ctx, job, r); err != nil {
				logrus.WithField("job_key", job.JobKey).WithError(err).Error("dispatch failed")
			}
		}()
	}
}

func decode(body messaging.Body) (*model.Job, error) {
	broadcast := &model.Broadcast{}
	if err := json.Unmarshal(body, broadcast); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	return model.DecodeJob(broadcast.Payload)
}
