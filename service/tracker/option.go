package tracker

import (
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/messaging"
)

// Option represents a tracker option
type Option func(*Service)

// WithQueue sets the inbound message queue
func WithQueue(queue messaging.Queue[model.Message]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithRegistry sets the registry
func WithRegistry(registry Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithSegments sets the segment allocator
func WithSegments(segments Segments) Option {
	return func(s *Service) {
		s.segments = segments
	}
}

// WithReporter sets the outcome reporter
func WithReporter(reporter Reporter) Option {
	return func(s *Service) {
		s.reporter = reporter
	}
}

// WithStateListener sets the state listener
func WithStateListener(listener StateListener) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

// WithSegmentDir sets the directory segments are attached from
func WithSegmentDir(dir string) Option {
	return func(s *Service) {
		s.segmentDir = dir
	}
}

// WithConfig sets the tracker config
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
