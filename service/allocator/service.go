package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/tracing"
)

// Config represents allocator service configuration
type Config struct {
	// RequestQueue receives pod announcements
	RequestQueue string
	// Exchange fans jobs out to every pod
	Exchange string
	// ExpectedPods is the number of announcements collected before assigning
	ExpectedPods int
	// Timeout bounds the collection phase; zero waits forever
	Timeout time.Duration
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		RequestQueue: "id-assignation",
		Exchange:     "lithops",
		ExpectedPods: 1,
	}
}

// Service assigns ranges and broadcasts jobs
type Service struct {
	config Config
	broker messaging.Broker
}

// New creates a new allocator service
func New(broker messaging.Broker, config Config) *Service {
	defaults := DefaultConfig()
	if config.RequestQueue == "" {
		config.RequestQueue = defaults.RequestQueue
	}
	if config.Exchange == "" {
		config.Exchange = defaults.Exchange
	}
	if config.ExpectedPods <= 0 {
		config.ExpectedPods = defaults.ExpectedPods
	}
	return &Service{config: config, broker: broker}
}

// Assign gives every announcement a contiguous range in arrival order. The
// ranges never overlap and together cover [0, total-1], where total is the sum
// of announced CPUs.
func Assign(announcements []model.Announcement) []model.Assignment {
	total := 0
	for _, announcement := range announcements {
		total += announcement.NumCPUs
	}
	assignments := make([]model.Assignment, 0, len(announcements))
	start := 0
	for _, announcement := range announcements {
		assignments = append(assignments, model.Assignment{
			RangeStart: start,
			RangeEnd:   start + announcement.NumCPUs - 1,
			TotalCPUs:  total,
		})
		start += announcement.NumCPUs
	}
	return assignments
}

// Run collects ExpectedPods announcements, assigns ranges and replies to
// every pod. Announcements without capacity or reply queue are dropped.
func (s *Service) Run(ctx context.Context) (assignments []model.Assignment, err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.Run", "CONSUMER")
	defer func() { tracing.EndSpan(span, err) }()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	raw, err := s.broker.Queue(ctx, s.config.RequestQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to declare request queue %s: %w", s.config.RequestQueue, err)
	}
	requests := messaging.NewJSONQueue[model.Announcement](raw)
	var announcements []model.Announcement
	for len(announcements) < s.config.ExpectedPods {
		msg, err := requests.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
				return nil, fmt.Errorf("collected %d of %d announcements: %w", len(announcements), s.config.ExpectedPods, err)
			}
			logrus.WithError(err).Warn("ignoring malformed announcement")
			continue
		}
		announcement := *msg.T()
		_ = msg.Ack()
		if announcement.NumCPUs <= 0 || announcement.ReplyQueue == "" {
			logrus.WithFields(logrus.Fields{"num_cpus": announcement.NumCPUs, "reply_queue": announcement.ReplyQueue}).Warn("ignoring invalid announcement")
			continue
		}
		announcements = append(announcements, announcement)
	}

	assignments = Assign(announcements)
	for i, assignment := range assignments {
		replyQueue := announcements[i].ReplyQueue
		if err := messaging.PublishJSON(ctx, s.broker, replyQueue, &assignment); err != nil {
			return nil, fmt.Errorf("failed to reply to %s: %w", replyQueue, err)
		}
		logrus.WithFields(logrus.Fields{
			"reply_queue": replyQueue,
			"range":       assignment.PodRange().String(),
		}).Info("range assigned")
	}
	return assignments, nil
}

// Broadcast publishes the encoded job to every pod.
func (s *Service) Broadcast(ctx context.Context, job *model.Job) (err error) {
	if job == nil {
		return fmt.Errorf("job was nil")
	}
	ctx, span := tracing.StartSpan(ctx, "allocator.Broadcast", "PRODUCER")
	defer func() { tracing.EndSpan(span, err) }()
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	if err = messaging.BroadcastJSON(ctx, s.broker, s.config.Exchange, &model.Broadcast{Payload: payload}); err != nil {
		return fmt.Errorf("failed to broadcast job %s: %w", job.JobKey, err)
	}
	logrus.WithFields(logrus.Fields{"job_key": job.JobKey, "exchange": s.config.Exchange}).Info("job broadcast")
	return nil
}
