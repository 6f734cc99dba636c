package shmcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option represents a manager option
type Option func(s *Service)

// WithConfig sets the cache config; nil keeps DefaultConfig
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithExecutable runs broker and tracker as child processes of executable
// (invoked with "broker" and "tracker" arguments) instead of goroutines
func WithExecutable(executable string) Option {
	return func(s *Service) {
		s.executable = executable
	}
}

// WithRegisterer registers the cache metrics collector while the cache runs
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(s *Service) {
		s.registerer = registerer
	}
}

// WithLogLevel sets the shared logger level
func WithLogLevel(level string) Option {
	return func(s *Service) {
		_ = logger.SetLevel(level)
	}
}

// WithTracing configures OpenTelemetry tracing with the stdout exporter, or
// outputFile when not empty. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
