package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/shmcache/internal/clock"
	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/messaging"
	"github.com/viant/shmcache/service/registry"
	"github.com/viant/shmcache/tracing"
)

// Config represents tracker config
type Config struct {
	// RetryDelay is the pause after a failed consume
	RetryDelay time.Duration
	// MaxConsumeErrors is the number of consecutive consume failures after which Run gives up
	MaxConsumeErrors int
}

// DefaultConfig returns default tracker config
func DefaultConfig() Config {
	return Config{
		RetryDelay:       100 * time.Millisecond,
		MaxConsumeErrors: 50,
	}
}

// Service represents the cache tracker
type Service struct {
	config     Config
	queue      messaging.Queue[model.Message]
	registry   Registry
	segments   Segments
	reporter   Reporter
	listener   StateListener
	segmentDir string
	log        *logrus.Entry
}

// New creates a tracker
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig(), log: logger.Get("tracker")}
	for _, opt := range options {
		opt(s)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.segments == nil {
		return nil, fmt.Errorf("segments is required")
	}
	if s.segmentDir == "" {
		return nil, fmt.Errorf("segment dir is required")
	}
	if s.config.RetryDelay <= 0 {
		s.config.RetryDelay = DefaultConfig().RetryDelay
	}
	return s, nil
}

// Run consumes messages until a stop message is processed or ctx is done
func (s *Service) Run(ctx context.Context) error {
	if err := s.setState(ctx, model.TrackerRunning); err != nil {
		return fmt.Errorf("failed to publish tracker state: %w", err)
	}
	s.log.Info("tracker running")
	failures := 0
	for {
		msg, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, messaging.ErrClosed) {
				s.log.Info("queue closed, tracker exiting")
				return err
			}
			failures++
			if s.config.MaxConsumeErrors > 0 && failures >= s.config.MaxConsumeErrors {
				return fmt.Errorf("giving up after %d consume failures: %w", failures, err)
			}
			s.log.Warnf("consume failed: %v", err)
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		failures = 0
		if msg == nil {
			continue
		}
		if stop := s.processMessage(ctx, msg); stop {
			s.log.Info("tracker stopped")
			return nil
		}
	}
}

func (s *Service) processMessage(ctx context.Context, message messaging.Message[model.Message]) (stop bool) {
	msg := message.T()
	ctx, span := tracing.StartSpan(ctx, "tracker."+string(msg.Action), "CONSUMER")
	span.WithAttributes(map[string]string{"message.id": msg.ID, "cache.name": msg.Name})

	outcome := s.Apply(ctx, msg)
	if msg.Action == model.ActionStop {
		stop = true
		if err := s.setState(ctx, model.TrackerStopped); err != nil {
			s.log.Warnf("failed to publish stopped state: %v", err)
		}
	}
	s.report(ctx, msg, outcome)

	var err error
	if outcome.OK() {
		err = message.Ack()
	} else {
		err = message.Nack(errors.New(outcome.Message))
	}
	if err != nil {
		s.log.Debugf("message %s settle: %v", msg.ID, err)
	}
	var spanErr error
	if !outcome.OK() {
		spanErr = fmt.Errorf("%s: %s", outcome.Code, outcome.Message)
	}
	tracing.EndSpan(span, spanErr)
	return stop
}

// Apply processes a single message and returns its outcome
func (s *Service) Apply(ctx context.Context, msg *model.Message) *model.Outcome {
	if err := msg.Validate(); err != nil {
		return model.NewOutcome(msg, model.CodeInvalid, err)
	}
	var err error
	switch msg.Action {
	case model.ActionPut:
		err = s.put(ctx, msg)
	case model.ActionReplace:
		err = s.replace(ctx, msg)
	case model.ActionRemove:
		err = s.remove(ctx, msg.Name)
	case model.ActionStop:
	}
	return model.NewOutcome(msg, codeOf(err), err)
}

func (s *Service) put(ctx context.Context, msg *model.Message) error {
	existing, err := s.registry.Lookup(ctx, msg.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %q", registry.ErrAlreadyExists, msg.Name)
	}
	handle, err := s.segments.Create(ctx, msg.ByteSize)
	if err != nil {
		return err
	}
	if err = s.write(handle, msg.Payload); err == nil {
		entry := msg.Entry(handle.ID)
		entry.CreatedAt = clock.Now()
		err = s.registry.Insert(ctx, entry)
	}
	if err != nil {
		if dErr := s.segments.Destroy(ctx, handle.ID); dErr != nil {
			s.log.Warnf("failed to destroy segment %s after failed put: %v", handle.ID, dErr)
		}
		return err
	}
	return nil
}

func (s *Service) write(handle *model.SegmentHandle, payload []byte) error {
	attachment, err := allocator.Attach(s.segmentDir, handle.ID)
	if err != nil {
		return err
	}
	if len(payload) > attachment.Len() {
		_ = attachment.Close()
		return fmt.Errorf("segment %s: %d bytes do not fit %d", handle.ID, len(payload), attachment.Len())
	}
	copy(attachment.Bytes(), payload)
	return attachment.Close()
}

func (s *Service) replace(ctx context.Context, msg *model.Message) error {
	entry, err := s.registry.Remove(ctx, msg.Name)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: %q", errNotFound, msg.Name)
	}
	s.destroy(ctx, entry)
	return s.put(ctx, msg)
}

func (s *Service) remove(ctx context.Context, name string) error {
	entry, err := s.registry.Remove(ctx, name)
	if err != nil || entry == nil {
		return err
	}
	s.destroy(ctx, entry)
	return nil
}

// destroy releases the segment of a deregistered entry; the entry is gone
// already so failures are only logged
func (s *Service) destroy(ctx context.Context, entry *model.CacheEntry) {
	if err := s.segments.Destroy(ctx, entry.SegmentID); err != nil && !errors.Is(err, allocator.ErrNotFound) {
		s.log.Warnf("failed to destroy segment %s of %q: %v", entry.SegmentID, entry.Name, err)
	}
}

func (s *Service) report(ctx context.Context, msg *model.Message, outcome *model.Outcome) {
	fields := logrus.Fields{"id": msg.ID, "action": msg.Action, "name": msg.Name, "code": outcome.Code, "sender": msg.Sender}
	if outcome.OK() {
		s.log.WithFields(fields).Debug("message processed")
	} else {
		s.log.WithFields(fields).Warnf("message failed: %s", outcome.Message)
	}
	if s.reporter == nil {
		return
	}
	if err := s.reporter.Report(ctx, outcome); err != nil {
		s.log.WithFields(fields).Warnf("failed to report outcome: %v", err)
	}
}

func (s *Service) setState(ctx context.Context, state model.TrackerState) error {
	if s.listener == nil {
		return nil
	}
	return s.listener.SetTrackerState(ctx, state)
}
