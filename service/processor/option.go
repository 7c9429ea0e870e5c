package processor

import (
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/executor"
	"github.com/viant/podwork/service/messaging"
)

// Option customises the processor
type Option func(*Service)

// WithMessageQueue sets the queue activations travel through
func WithMessageQueue(queue messaging.Queue[model.Activation]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithExecutor sets the executor invoked by every worker
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
