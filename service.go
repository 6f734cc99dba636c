package shmcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/viant/shmcache/internal/clock"
	"github.com/viant/shmcache/internal/idgen"
	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/internal/proc"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/broker"
	"github.com/viant/shmcache/service/metrics"
	"github.com/viant/shmcache/service/worker"
)

var (
	// ErrDisabled is returned when starting a disabled configuration
	ErrDisabled = errors.New("shmcache: cache is disabled")

	// ErrNotRunning is returned by calls that need a started cache
	ErrNotRunning = errors.New("shmcache: cache is not running")
)

// Service manages the lifecycle of one cache instance
type Service struct {
	config     *Config
	executable string
	registerer prometheus.Registerer
	collector  *metrics.Collector

	mu         sync.Mutex
	state      State
	handle     *model.Handle
	ownerToken string
	startedAt  time.Time
	broker     *proc.Child
	tracker    *proc.Child
	client     *broker.Client
	stopping   chan struct{}
	log        *logrus.Entry
}

// New creates a cache manager
func New(options ...Option) *Service {
	ret := &Service{config: DefaultConfig(), log: logger.Get("manager")}
	for _, opt := range options {
		opt(ret)
	}
	if ret.config == nil {
		ret.config = DefaultConfig()
	}
	if ret.executable == "" {
		ret.executable = ret.config.Executable
	}
	return ret
}

// State returns lifecycle state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle returns the handle of a started cache
func (s *Service) Handle() *model.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Env returns environment entries publishing the handle to worker processes
func (s *Service) Env() ([]string, error) {
	handle := s.Handle()
	if handle == nil {
		return nil, ErrNotRunning
	}
	encoded, err := handle.Encode()
	if err != nil {
		return nil, err
	}
	return []string{model.HandleEnv + "=" + encoded}, nil
}

// Attach connects the current process as a worker
func (s *Service) Attach(ctx context.Context) (*worker.Cache, error) {
	handle := s.Handle()
	if handle == nil {
		return nil, ErrNotRunning
	}
	return worker.Attach(ctx, handle, worker.WithConfirmTimeout(s.config.ConfirmTimeout))
}

// Stats returns cache stats
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, ErrNotRunning
	}
	return client.Stats(ctx)
}

// Start spawns broker and tracker and returns the cache handle. Starting a
// running cache returns its handle.
func (s *Service) Start(ctx context.Context) (*model.Handle, error) {
	if !s.config.Enabled {
		return nil, ErrDisabled
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s.mu.Lock()
	switch s.state {
	case StateRunning, StateDegraded:
		handle := s.handle
		s.mu.Unlock()
		return handle, nil
	case StateNotStarted:
		s.state = StateStarting
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot start cache in %v state", state)
	}
	s.mu.Unlock()

	if err := logger.SetLevel(s.config.LogLevel); err != nil {
		s.log.Warnf("invalid log level: %v", err)
	}
	handle, err := s.start(ctx)
	if err != nil {
		s.abort()
		s.mu.Lock()
		s.state = StateNotStarted
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	go s.monitor()

	if s.registerer != nil {
		s.collector = metrics.NewCollector(s)
		if err = s.registerer.Register(s.collector); err != nil {
			s.log.Warnf("failed to register metrics: %v", err)
			s.collector = nil
		}
	}
	s.log.WithFields(logrus.Fields{"instance": handle.InstanceID, "address": handle.Address, "maxBytes": s.config.MaxBytes.String()}).Info("cache started")
	return handle, nil
}

func (s *Service) start(ctx context.Context) (*model.Handle, error) {
	instanceID := idgen.New()
	short := idgen.Prefix(instanceID)
	handle := &model.Handle{
		InstanceID:      instanceID,
		Address:         filepath.Join(s.config.SocketDir, "shmcache-"+short+".sock"),
		Token:           idgen.Token(),
		SegmentDir:      s.config.SegmentDir,
		SegmentPrefix:   "shmcache-" + short + "-",
		MaxBytes:        int64(s.config.MaxBytes),
		QueueCapacity:   s.config.QueueCapacity,
		MaxMessageBytes: int(s.config.MaxMessageBytes),
		Profiling:       s.config.Profiling,
		ConfirmTimeout:  s.config.ConfirmTimeout,
	}
	for _, dir := range []string{s.config.SegmentDir, s.config.SocketDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	s.mu.Lock()
	s.handle = handle
	s.ownerToken = idgen.Token()
	s.startedAt = clock.Now()
	s.stopping = make(chan struct{})
	s.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, s.config.StartTimeout)
	defer cancel()

	var err error
	if s.broker, err = s.spawn(roleBroker, handle); err != nil {
		return nil, err
	}
	client, err := broker.Dial(startCtx, handle, broker.WithOwnerToken(s.ownerToken))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	if err = s.awaitBroker(startCtx); err != nil {
		return nil, err
	}
	if s.tracker, err = s.spawn(roleTracker, handle); err != nil {
		return nil, err
	}
	if err = s.awaitTracker(startCtx); err != nil {
		return nil, err
	}
	return handle, nil
}

func (s *Service) spawn(role string, handle *model.Handle) (*proc.Child, error) {
	if s.executable == "" {
		return proc.Go(context.Background(), role, func(ctx context.Context) error {
			if role == roleBroker {
				return RunBroker(ctx, handle, s.ownerToken)
			}
			return RunTracker(ctx, handle, s.ownerToken)
		}), nil
	}
	encoded, err := handle.Encode()
	if err != nil {
		return nil, err
	}
	return proc.Exec(context.Background(), role, s.executable, []string{role},
		model.HandleEnv+"="+encoded,
		OwnerTokenEnv+"="+s.ownerToken,
		LogLevelEnv+"="+s.config.LogLevel,
	)
}

func (s *Service) awaitBroker(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.broker.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	if _, err := s.client.Ping(ctx, true); err != nil {
		if s.broker.Exited() {
			return fmt.Errorf("broker exited during start: %v", s.broker.Err())
		}
		return fmt.Errorf("broker did not become ready: %w", err)
	}
	return nil
}

func (s *Service) awaitTracker(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		resp, err := s.client.Ping(ctx, false)
		if err == nil && resp.TrackerState == model.TrackerRunning {
			return nil
		}
		select {
		case <-s.tracker.Done():
			return fmt.Errorf("tracker exited during start: %v", s.tracker.Err())
		case <-ctx.Done():
			return fmt.Errorf("tracker did not become ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// monitor marks the cache degraded when the tracker or broker exits while running
func (s *Service) monitor() {
	s.mu.Lock()
	client, stopping := s.client, s.stopping
	s.mu.Unlock()
	var exited *proc.Child
	select {
	case <-s.tracker.Done():
		exited = s.tracker
	case <-s.broker.Done():
		exited = s.broker
	case <-stopping:
		return
	}
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.log.WithField("role", exited.Name).Errorf("%s exited unexpectedly: %v", exited.Name, exited.Err())

	if exited == s.tracker {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.StopTimeout)
		if err := client.SetTrackerState(ctx, model.TrackerDegraded); err != nil {
			s.log.Warnf("failed to mark tracker degraded: %v", err)
		}
		cancel()
	}
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateDegraded
	}
	s.mu.Unlock()
}

// Stop stops the tracker, destroys every segment and stops the broker.
// Stopping a cache that is not running is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	previous := s.state
	switch previous {
	case StateRunning, StateDegraded:
		s.state = StateStopping
		close(s.stopping)
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var errs *multierror.Error
	if previous == StateRunning && !s.tracker.Exited() {
		stopCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
		stop := &model.Message{ID: idgen.New(), Action: model.ActionStop, Sender: os.Getpid(), CreatedAt: clock.Now()}
		if err := s.client.Publish(stopCtx, stop); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to publish stop: %w", err))
		}
		cancel()
	}
	if err := s.await(ctx, s.tracker); err != nil {
		errs = multierror.Append(errs, err)
	}

	var stats *model.Stats
	if s.config.Profiling {
		statsCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
		stats, _ = s.client.Stats(statsCtx)
		cancel()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
	destroyed, err := s.client.Shutdown(shutdownCtx)
	cancel()
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("broker shutdown failed: %w", err))
	}
	if err = s.await(ctx, s.broker); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err = s.client.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	purged, err := s.purgeSegments()
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if err = os.Remove(s.handle.Address); err != nil && !os.IsNotExist(err) {
		errs = multierror.Append(errs, err)
	}
	if s.collector != nil {
		s.registerer.Unregister(s.collector)
		s.collector = nil
	}
	if s.config.Profiling {
		report := &Report{InstanceID: s.handle.InstanceID, StartedAt: s.startedAt, StoppedAt: clock.Now(), Destroyed: destroyed + purged, Stats: stats}
		if URL, err := s.writeReport(ctx, report); err != nil {
			errs = multierror.Append(errs, err)
		} else {
			s.log.WithField("url", URL).Info("profiling report written")
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.client = nil
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"instance": s.handle.InstanceID, "destroyed": destroyed, "purged": purged, "uptime": clock.Since(s.startedAt)}).Info("cache stopped")
	return errs.ErrorOrNil()
}

// await waits for child to exit within StopTimeout, terminating and finally killing it
func (s *Service) await(ctx context.Context, child *proc.Child) error {
	if child == nil {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.config.StopTimeout)
	defer cancel()
	if err := child.Wait(waitCtx); err == nil || child.Exited() {
		return nil
	}
	s.log.Warnf("%s did not exit in %v, terminating", child.Name, s.config.StopTimeout)
	if err := child.Terminate(); err != nil {
		return err
	}
	termCtx, termCancel := context.WithTimeout(context.Background(), time.Second)
	defer termCancel()
	if err := child.Wait(termCtx); err != nil && !child.Exited() {
		_ = child.Kill()
		return fmt.Errorf("%s was killed: %w", child.Name, err)
	}
	return nil
}

// purgeSegments removes segment files the broker could not destroy
func (s *Service) purgeSegments() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.handle.SegmentDir, s.handle.SegmentPrefix+"*"))
	if err != nil {
		return 0, err
	}
	var errs *multierror.Error
	count := 0
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, err)
			continue
		}
		count++
	}
	if count > 0 {
		s.log.Warnf("purged %d residual segments", count)
	}
	return count, errs.ErrorOrNil()
}

// abort releases whatever a failed start left behind
func (s *Service) abort() {
	for _, child := range []*proc.Child{s.tracker, s.broker} {
		if child != nil {
			_ = child.Terminate()
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.StopTimeout)
	defer cancel()
	for _, child := range []*proc.Child{s.tracker, s.broker} {
		if child != nil {
			_ = child.Wait(ctx)
		}
	}
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	if s.handle != nil {
		_, _ = s.purgeSegments()
		_ = os.Remove(s.handle.Address)
		s.handle = nil
	}
	s.tracker, s.broker = nil, nil
}

// StartCache creates and starts a cache with config
func StartCache(ctx context.Context, config *Config, options ...Option) (*Service, *model.Handle, error) {
	srv := New(append([]Option{WithConfig(config)}, options...)...)
	handle, err := srv.Start(ctx)
	if err != nil {
		return nil, nil, err
	}
	return srv, handle, nil
}

// StopCache stops a cache started with StartCache
func StopCache(ctx context.Context, srv *Service) error {
	if srv == nil {
		return nil
	}
	return srv.Stop(ctx)
}
