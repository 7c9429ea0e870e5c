package podwork

import (
	"github.com/viant/afs"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/dao"
	"github.com/viant/podwork/service/executor"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service
type Option func(s *Service)

// WithExecutor replaces the command executor built from Config.Executor
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithBroker replaces the broker built from Config.Broker
func WithBroker(broker messaging.Broker) Option {
	return func(s *Service) {
		s.broker = broker
	}
}

// WithCounterStore sets the dispenser counter store
func WithCounterStore(store dao.Service[string, model.Counter]) Option {
	return func(s *Service) {
		s.counters = store
	}
}

// WithFileSystem sets the afs service used for storage
func WithFileSystem(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithTracing configures OpenTelemetry tracing; an empty outputFile writes to stdout.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.tracingErr = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.tracingErr = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
