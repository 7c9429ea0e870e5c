// Package coordinator implements the pod side of the push protocol: a pod
// announces its capacity on the request queue and receives the CPU slot range
// it owns on a private reply queue.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/tracing"
)

// DefaultRequestQueue is the well-known queue announcements are sent to.
const DefaultRequestQueue = "id-assignation"

// Service holds the range assigned to this pod. The first valid assignment
// wins and never changes afterwards.
type Service struct {
	broker       messaging.Broker
	requestQueue string

	mu       sync.RWMutex
	rng      model.PodRange
	assigned bool
	ready    chan struct{}
}

// New creates a coordinator; an empty requestQueue means DefaultRequestQueue.
func New(broker messaging.Broker, requestQueue string) *Service {
	if requestQueue == "" {
		requestQueue = DefaultRequestQueue
	}
	return &Service{broker: broker, requestQueue: requestQueue, ready: make(chan struct{})}
}

// Announce declares a private reply queue, starts listening on it and
// publishes the pod capacity. The listener stops when ctx is done.
func (s *Service) Announce(ctx context.Context, numCPUs int) (err error) {
	if numCPUs <= 0 {
		return fmt.Errorf("num cpus must be > 0, got %d", numCPUs)
	}
	ctx, span := tracing.StartSpan(ctx, "coordinator.Announce", "PRODUCER")
	defer func() { tracing.EndSpan(span, err) }()

	replyName, reply, err := s.broker.ExclusiveQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to declare reply queue: %w", err)
	}
	go s.listen(ctx, messaging.NewJSONQueue[model.Assignment](reply))

	if err = s.broker.Declare(ctx, s.requestQueue); err != nil {
		return fmt.Errorf("failed to declare request queue %s: %w", s.requestQueue, err)
	}
	announcement := &model.Announcement{NumCPUs: numCPUs, ReplyQueue: replyName}
	if err = messaging.PublishJSON(ctx, s.broker, s.requestQueue, announcement); err != nil {
		return fmt.Errorf("failed to announce capacity: %w", err)
	}
	logrus.WithFields(logrus.Fields{"num_cpus": numCPUs, "reply_queue": replyName}).Info("announced capacity")
	return nil
}

// Wait blocks until the range is assigned or ctx is done.
func (s *Service) Wait(ctx context.Context) (model.PodRange, error) {
	select {
	case <-s.ready:
		r, _ := s.Range()
		return r, nil
	case <-ctx.Done():
		return model.PodRange{}, ctx.Err()
	}
}

// Range returns the assigned range, if any.
func (s *Service) Range() (model.PodRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rng, s.assigned
}

func (s *Service) listen(ctx context.Context, replies messaging.Queue[model.Assignment]) {
	for {
		msg, err := replies.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
				return
			}
			logrus.WithError(err).Warn("ignoring malformed assignment")
			continue
		}
		if msg == nil {
			continue
		}
		s.assign(msg.T().PodRange())
		_ = msg.Ack()
	}
}

func (s *Service) assign(r model.PodRange) {
	entry := logrus.WithField("range", r.String())
	if err := r.Validate(); err != nil {
		entry.WithError(err).Error("ignoring invalid assignment")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assigned {
		entry.WithField("assigned", s.rng.String()).Warn("ignoring repeated assignment")
		return
	}
	s.rng = r
	s.assigned = true
	close(s.ready)
	entry.Info("range assigned")
}
