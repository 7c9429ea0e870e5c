package podwork

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/allocator"
	"github.com/viant/podwork/service/dao"
	counterfs "github.com/viant/podwork/service/dao/counter/fs"
	"github.com/viant/podwork/service/dispenser"
	"github.com/viant/podwork/service/executor"
	"github.com/viant/podwork/service/executor/command"
	"github.com/viant/podwork/service/messaging"
	amqpbroker "github.com/viant/podwork/service/messaging/amqp"
	fsbroker "github.com/viant/podwork/service/messaging/fs"
	"github.com/viant/podwork/service/messaging/memory"
	"github.com/viant/podwork/service/metadata"
	"github.com/viant/podwork/service/pod"
	"github.com/viant/podwork/service/puller"
	"github.com/viant/podwork/tracing"
)

const serviceName = "podwork"

// Service wires the coordination components from a Config.
type Service struct {
	config     *Config
	fs         afs.Service
	executor   executor.Service
	broker     messaging.Broker
	counters   dao.Service[string, model.Counter]
	tracingErr error

	mu         sync.Mutex
	ownsBroker bool
}

// New creates a service; a nil config uses DefaultConfig.
func New(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{config: config}
	if config.Tracing.Enabled {
		ret.tracingErr = tracing.Init(serviceName, "", config.Tracing.Output)
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.tracingErr != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", ret.tracingErr)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	if ret.executor == nil {
		ret.executor = command.New(config.Executor)
	}
	if ret.counters == nil && config.Master.StateURL != "" {
		store, err := counterfs.New(ret.fs, config.Master.StateURL)
		if err != nil {
			return nil, err
		}
		ret.counters = store
	}
	return ret, nil
}

// Config returns the service configuration
func (s *Service) Config() *Config {
	return s.config
}

// Dispenser returns a new index dispenser over the configured counter store
func (s *Service) Dispenser() *dispenser.Service {
	var options []dispenser.Option
	if s.counters != nil {
		options = append(options, dispenser.WithCounterStore(s.counters))
	}
	return dispenser.New(options...)
}

// RunMaster serves chunk indices until ctx is done.
func (s *Service) RunMaster(ctx context.Context) error {
	srv := s.Dispenser()
	resumed, err := srv.Resume(ctx)
	if err != nil {
		return err
	}
	if resumed > 0 {
		logrus.WithField("jobs", resumed).Info("resumed persisted counters")
	}
	server := dispenser.NewServer(srv, s.config.Master.Port)
	logrus.WithField("addr", server.Addr()).Info("starting master")
	return server.ListenAndServe(ctx)
}

// RunJob pulls and executes chunks of the encoded job until the master
// reports it exhausted; it returns the number of chunks run here.
func (s *Service) RunJob(ctx context.Context, encoded string) (int, error) {
	job, err := s.decode(encoded)
	if err != nil {
		return 0, err
	}
	if s.config.Client.MasterAddress == "" {
		return 0, fmt.Errorf("master address is required, set %s", MasterPodIPEnv)
	}
	client, err := dispenser.NewClient(s.config.Client.MasterAddress, s.config.Client.RetryDelay)
	if err != nil {
		return 0, err
	}
	return puller.New(client, s.executor).Run(ctx, job)
}

// ExtractMetadata stores the runtime metadata and returns its URL.
func (s *Service) ExtractMetadata(ctx context.Context, encoded string) (string, error) {
	job, err := s.decode(encoded)
	if err != nil {
		return "", err
	}
	return metadata.New(s.fs, s.config.Storage.BaseURL, s.executor).Extract(ctx, job)
}

// RunPod joins the push protocol with the configured number of processes
// and runs broadcast jobs until ctx is done.
func (s *Service) RunPod(ctx context.Context) error {
	broker, err := s.Broker()
	if err != nil {
		return err
	}
	srv, err := pod.New(broker, s.executor, pod.Config{
		Processes:    s.config.Pod.Processes,
		RequestQueue: s.config.Pod.RequestQueue,
		Exchange:     s.config.Pod.Exchange,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// RunAllocator assigns ranges to the expected number of pods.
func (s *Service) RunAllocator(ctx context.Context) ([]model.Assignment, error) {
	broker, err := s.Broker()
	if err != nil {
		return nil, err
	}
	return s.allocator(broker).Run(ctx)
}

// Broadcast publishes the encoded job to every pod.
func (s *Service) Broadcast(ctx context.Context, encoded string) error {
	job, err := s.decode(encoded)
	if err != nil {
		return err
	}
	broker, err := s.Broker()
	if err != nil {
		return err
	}
	return s.allocator(broker).Broadcast(ctx, job)
}

func (s *Service) allocator(broker messaging.Broker) *allocator.Service {
	return allocator.New(broker, allocator.Config{
		RequestQueue: s.config.Pod.RequestQueue,
		Exchange:     s.config.Pod.Exchange,
		ExpectedPods: s.config.Allocator.ExpectedPods,
		Timeout:      s.config.Allocator.Timeout,
	})
}

// Broker returns the configured broker, connecting on first use.
func (s *Service) Broker() (messaging.Broker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broker != nil {
		return s.broker, nil
	}
	cfg := s.config.Broker
	var err error
	switch cfg.Vendor {
	case messaging.VendorMemory:
		s.broker = memory.NewBroker(memory.DefaultConfig())
	case messaging.VendorFs:
		fsConfig := fsbroker.DefaultConfig()
		fsConfig.BasePath = cfg.BasePath
		if cfg.PollInterval > 0 {
			fsConfig.PollInterval = cfg.PollInterval
		}
		s.broker, err = fsbroker.NewBroker(s.fs, fsConfig)
	case messaging.VendorAMQP:
		s.broker, err = amqpbroker.NewBroker(amqpbroker.Config{URL: cfg.URL})
	default:
		err = fmt.Errorf("unsupported broker vendor: %q", cfg.Vendor)
	}
	if err != nil {
		s.broker = nil
		return nil, err
	}
	s.ownsBroker = true
	return s.broker, nil
}

// Close releases a broker created by the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broker == nil || !s.ownsBroker {
		return nil
	}
	err := s.broker.Close()
	s.broker = nil
	return err
}

// decode parses the payload and applies its log level.
func (s *Service) decode(encoded string) (*model.Job, error) {
	job, err := model.DecodeJob(encoded)
	if err != nil {
		return nil, err
	}
	if job.LogLevel != "" {
		if level, err := logrus.ParseLevel(job.LogLevel); err == nil {
			logrus.SetLevel(level)
		} else {
			logrus.WithField("level", job.LogLevel).Warn("ignoring unknown payload log level")
		}
	}
	return job, nil
}
