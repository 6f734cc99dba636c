package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/shmcache/internal/clock"
	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/progress"
	"github.com/viant/shmcache/service/ack"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/messaging"
	"github.com/viant/shmcache/service/messaging/memory"
	"github.com/viant/shmcache/service/registry"
	"google.golang.org/grpc"
)

// Config represents broker config
type Config struct {
	// Handle describes the instance served by the broker
	Handle model.Handle
	// OwnerToken authorises mutating calls
	OwnerToken string
	// GracePeriod bounds graceful server stop
	GracePeriod time.Duration
	// ExpireAfter drops confirmation waiters nobody collected, defaults to
	// twice the handle confirm timeout
	ExpireAfter time.Duration
}

// Validate checks config
func (c *Config) Validate() error {
	if err := c.Handle.Validate(); err != nil {
		return err
	}
	if c.OwnerToken == "" {
		return fmt.Errorf("owner token was empty")
	}
	if c.OwnerToken == c.Handle.Token {
		return fmt.Errorf("owner token must differ from bearer token")
	}
	if c.Handle.QueueCapacity <= 0 {
		return fmt.Errorf("invalid queue capacity: %d", c.Handle.QueueCapacity)
	}
	return nil
}

// Server represents the broker of one cache instance
type Server struct {
	config   Config
	segments *allocator.Service
	registry *registry.Memory
	queue    *memory.Queue[model.Message]
	board    *ack.Board
	progress *progress.Progress

	mu       sync.RWMutex
	state    model.TrackerState
	inflight map[string]messaging.Message[model.Message]

	server       *grpc.Server
	stopOnce     sync.Once
	shutdownOnce sync.Once
	destroyed    int
	shutdownErr  error
	done         chan struct{}
	log          *logrus.Entry
}

// New creates a broker
func New(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 5 * time.Second
	}
	if config.ExpireAfter <= 0 {
		config.ExpireAfter = time.Minute
		if timeout := config.Handle.ConfirmTimeout; timeout > 0 {
			config.ExpireAfter = 2 * timeout
		}
	}
	segments, err := allocator.New(allocator.Config{
		Dir:      config.Handle.SegmentDir,
		Prefix:   config.Handle.SegmentPrefix,
		MaxBytes: config.Handle.MaxBytes,
		Journal:  config.Handle.Profiling,
	})
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:   config,
		segments: segments,
		registry: registry.NewMemory(),
		queue: memory.NewQueue[model.Message](
			memory.Config{QueueBuffer: config.Handle.QueueCapacity, DeadLetter: config.Handle.Profiling},
			memory.WithDeadLetterTrim(func(msg *model.Message) { msg.Payload = nil }),
		),
		board:    ack.New(),
		progress: progress.New(),
		state:    model.TrackerStarting,
		inflight: make(map[string]messaging.Message[model.Message]),
		done:     make(chan struct{}),
		log:      logger.Get("broker").WithField("instance", config.Handle.InstanceID),
	}
	size := maxFrameSize(config.Handle.MaxMessageBytes)
	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(s.intercept),
		grpc.MaxRecvMsgSize(size),
		grpc.MaxSendMsgSize(size),
	)
	s.server.RegisterService(&serviceDesc, s)
	return s, nil
}

// maxFrameSize returns the gRPC message limit needed to carry a payload of
// maxMessageBytes encoded as base64 inside JSON
func maxFrameSize(maxMessageBytes int) int {
	return maxMessageBytes/3*4 + 64*1024
}

// Serve listens on the handle socket and serves until ctx is done or the
// broker is shut down
func (s *Server) Serve(ctx context.Context) error {
	address := s.config.Handle.Address
	if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket %s: %w", address, err)
	}
	listener, err := net.Listen("unix", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	if err = os.Chmod(address, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to restrict socket %s: %w", address, err)
	}
	s.log.WithField("address", address).Info("broker serving")

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(listener) }()
	go s.expireWaiters(ctx)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GracePeriod)
		_, _ = s.Shutdown(shutdownCtx)
		cancel()
		<-errCh
	case err = <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
	case <-s.done:
		<-errCh
	}
	_ = os.Remove(address)
	return nil
}

// Shutdown closes the queue, aborts pending confirmations, destroys every
// segment and stops the server. It returns the number of destroyed segments.
func (s *Server) Shutdown(ctx context.Context) (int, error) {
	destroyed, err := s.release(ctx)
	s.stop()
	return destroyed, err
}

// release tears down cache state without stopping the gRPC server
func (s *Server) release(ctx context.Context) (int, error) {
	s.shutdownOnce.Do(func() {
		s.setState(model.TrackerStopped)
		s.queue.Close()
		s.dropInflight("cache is shutting down")
		s.board.Abort(model.CodeTrackerUnavailable, "cache is shutting down")
		s.destroyed, s.shutdownErr = s.segments.DestroyAll(ctx)
		s.log.WithField("destroyed", s.destroyed).Info("broker released segments")
	})
	return s.destroyed, s.shutdownErr
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		go func() {
			stopped := make(chan struct{})
			go func() {
				s.server.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(s.config.GracePeriod):
				s.server.Stop()
			}
			close(s.done)
		}()
	})
}

// expireWaiters periodically drops confirmation waiters older than ExpireAfter,
// left behind by workers that published with Confirm but never waited
func (s *Server) expireWaiters(ctx context.Context) {
	ticker := time.NewTicker(s.config.ExpireAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if count := s.board.Expire(clock.Now().Add(-s.config.ExpireAfter)); count > 0 {
				s.log.WithField("expired", count).Warn("dropped uncollected confirmations")
			}
		}
	}
}

// Done is closed once the server stopped
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stats returns a point in time view of the cache
func (s *Server) Stats(context.Context) (*model.Stats, error) {
	segments, bytes := s.segments.Usage()
	ret := &model.Stats{
		InstanceID:   s.config.Handle.InstanceID,
		Entries:      s.registry.Len(),
		Segments:     segments,
		Bytes:        bytes,
		MaxBytes:     s.segments.MaxBytes(),
		QueueDepth:    s.queue.Size(),
		QueueCapacity: s.queue.Capacity(),
		Inflight:      s.Inflight(),
		DeadLetters:   s.queue.Nacked(),
		TrackerState:  s.TrackerState(),
		Counters:      s.progress.Snapshot(),
	}
	if s.config.Handle.Profiling {
		ret.Journal = s.segments.Journal()
		for _, letter := range s.queue.DeadLetters() {
			rejected := &model.DeadLetter{Message: letter.T()}
			if err := letter.Err(); err != nil {
				rejected.Error = err.Error()
			}
			ret.Rejected = append(ret.Rejected, rejected)
		}
	}
	return ret, nil
}

// Inflight returns number of messages consumed by the tracker but not yet reported
func (s *Server) Inflight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inflight)
}

// drop fails a consumed message that will never be reported
func (s *Server) drop(message messaging.Message[model.Message], reason string) {
	msg := message.T()
	_ = message.Nack(errors.New(reason))
	s.board.Post(&model.Outcome{ID: msg.ID, Action: msg.Action, Name: msg.Name, Code: model.CodeTrackerUnavailable, Message: reason, ProcessedAt: clock.Now()})
	s.progress.Update(progress.Delta{Processed: 1, Failed: 1})
	s.log.WithFields(logrus.Fields{"id": msg.ID, "action": msg.Action, "name": msg.Name}).Warn("message dropped: " + reason)
}

// dropInflight fails every consumed message still waiting for its outcome
func (s *Server) dropInflight(reason string) {
	s.mu.Lock()
	pending := s.inflight
	s.inflight = make(map[string]messaging.Message[model.Message])
	s.mu.Unlock()
	for _, message := range pending {
		if message.T().Action == model.ActionStop {
			continue // reported by the tracker right after it publishes stopped
		}
		s.drop(message, reason)
	}
}

// TrackerState returns the last state reported for the tracker
func (s *Server) TrackerState() model.TrackerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) setState(state model.TrackerState) model.TrackerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.state
	if previous == model.TrackerStopped && state != model.TrackerStopped {
		return previous
	}
	s.state = state
	return previous
}

func (s *Server) ping(context.Context, *Empty) (*PingResponse, error) {
	return &PingResponse{InstanceID: s.config.Handle.InstanceID, TrackerState: s.TrackerState()}, nil
}

func (s *Server) publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	msg := req.Message
	if msg == nil {
		return nil, invalidArgument("message was empty")
	}
	if msg.Action == model.ActionStop && !s.isOwner(ctx) {
		return nil, fmt.Errorf("%w: stop requires owner token", ErrPermissionDenied)
	}
	if err := msg.Validate(); err != nil {
		return nil, invalidArgument("%v", err)
	}
	if limit := s.config.Handle.MaxMessageBytes; limit > 0 && len(msg.Payload) > limit {
		return nil, invalidArgument("payload of %d bytes exceeds %d", len(msg.Payload), limit)
	}
	if msg.ID == "" {
		return nil, invalidArgument("message id was empty")
	}
	if state := s.TrackerState(); !state.AcceptsMessages() {
		return nil, fmt.Errorf("%w: tracker is %s", ErrUnavailable, state)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = clock.Now()
	}
	if msg.Confirm {
		s.board.Expect(msg.ID)
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		s.board.Cancel(msg.ID)
		if errors.Is(err, messaging.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	s.progress.Update(progress.Delta{Published: 1})
	return &PublishResponse{QueueDepth: s.queue.Size()}, nil
}

func (s *Server) wait(ctx context.Context, req *WaitRequest) (*OutcomeResponse, error) {
	outcome, err := s.board.Wait(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &OutcomeResponse{Outcome: outcome}, nil
}

func (s *Server) lookup(ctx context.Context, req *LookupRequest) (*EntryResponse, error) {
	entry, err := s.registry.Lookup(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &EntryResponse{Entry: entry}, nil
}

func (s *Server) stats(ctx context.Context, _ *Empty) (*StatsResponse, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{Stats: stats}, nil
}

func (s *Server) consume(ctx context.Context, _ *Empty) (*ConsumeResponse, error) {
	message, err := s.queue.Consume(ctx)
	if err != nil {
		return nil, err
	}
	msg := message.T()
	if ctx.Err() != nil {
		s.drop(message, "consumer went away before delivery")
		return nil, ctx.Err()
	}
	s.mu.Lock()
	s.inflight[msg.ID] = message
	s.mu.Unlock()
	return &ConsumeResponse{Message: msg}, nil
}

func (s *Server) report(_ context.Context, req *ReportRequest) (*ReportResponse, error) {
	outcome := req.Outcome
	if outcome == nil {
		return nil, invalidArgument("outcome was empty")
	}
	s.mu.Lock()
	message, ok := s.inflight[outcome.ID]
	delete(s.inflight, outcome.ID)
	s.mu.Unlock()
	if ok {
		if outcome.OK() {
			_ = message.Ack()
		} else {
			_ = message.Nack(fmt.Errorf("%s: %s", outcome.Code, outcome.Message))
		}
	}

	delta := progress.Delta{Processed: 1}
	if !outcome.OK() {
		delta.Failed = 1
	} else {
		switch outcome.Action {
		case model.ActionPut:
			delta.Puts = 1
		case model.ActionReplace:
			delta.Replaces = 1
		case model.ActionRemove:
			delta.Removes = 1
		}
		delta.BytesWritten = int64(outcome.ByteSize)
	}
	s.progress.Update(delta)

	fields := logrus.Fields{"id": outcome.ID, "action": outcome.Action, "name": outcome.Name, "code": outcome.Code}
	if outcome.OK() {
		s.log.WithFields(fields).Debug("outcome")
	} else {
		s.log.WithFields(fields).Info("outcome: " + outcome.Message)
	}
	return &ReportResponse{Delivered: s.board.Post(outcome)}, nil
}

func (s *Server) insert(ctx context.Context, req *InsertRequest) (*Empty, error) {
	if req.Entry == nil {
		return nil, invalidArgument("entry was empty")
	}
	if err := s.registry.Insert(ctx, req.Entry); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) remove(ctx context.Context, req *RemoveRequest) (*EntryResponse, error) {
	entry, err := s.registry.Remove(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &EntryResponse{Entry: entry}, nil
}

func (s *Server) createSegment(ctx context.Context, req *CreateSegmentRequest) (*CreateSegmentResponse, error) {
	segment, err := s.segments.Create(ctx, req.Size)
	if err != nil {
		return nil, err
	}
	return &CreateSegmentResponse{Segment: segment}, nil
}

func (s *Server) destroySegment(ctx context.Context, req *DestroySegmentRequest) (*Empty, error) {
	if err := s.segments.Destroy(ctx, req.ID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) setTrackerState(_ context.Context, req *SetTrackerStateRequest) (*SetTrackerStateResponse, error) {
	previous := s.setState(req.State)
	if previous != req.State {
		s.log.WithFields(logrus.Fields{"from": previous, "to": req.State}).Info("tracker state changed")
	}
	switch req.State {
	case model.TrackerDegraded:
		s.dropInflight("tracker exited unexpectedly")
		s.board.Abort(model.CodeTrackerUnavailable, "tracker exited unexpectedly")
	case model.TrackerStopped:
		s.dropInflight("tracker stopped")
		s.board.Abort(model.CodeTrackerUnavailable, "tracker stopped")
	}
	return &SetTrackerStateResponse{Previous: previous}, nil
}

func (s *Server) shutdown(ctx context.Context, _ *Empty) (*ShutdownResponse, error) {
	destroyed, err := s.release(ctx)
	if err != nil {
		return nil, err
	}
	s.stop()
	return &ShutdownResponse{Destroyed: destroyed}, nil
}
