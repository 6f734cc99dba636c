package shmcache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/broker"
	"github.com/viant/shmcache/service/messaging"
	"github.com/viant/shmcache/service/tracker"
)

const (
	// OwnerTokenEnv carries the owner token to broker and tracker child processes
	OwnerTokenEnv = "SHMCACHE_OWNER_TOKEN"
	// LogLevelEnv carries the manager log level to child processes
	LogLevelEnv = "SHMCACHE_LOG_LEVEL"
)

const (
	roleBroker  = "broker"
	roleTracker = "tracker"
)

// RunBroker serves the broker of handle until ctx is done or it is shut down
func RunBroker(ctx context.Context, handle *model.Handle, ownerToken string) error {
	srv, err := broker.New(broker.Config{Handle: *handle, OwnerToken: ownerToken})
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// RunTracker connects to the broker of handle and processes its queue until a
// stop message arrives or ctx is done
func RunTracker(ctx context.Context, handle *model.Handle, ownerToken string) error {
	client, err := broker.Dial(ctx, handle, broker.WithOwnerToken(ownerToken))
	if err != nil {
		return err
	}
	defer client.Close()
	if _, err = client.Ping(ctx, true); err != nil {
		return fmt.Errorf("broker not reachable: %w", err)
	}
	trk, err := tracker.New(
		tracker.WithQueue(client),
		tracker.WithRegistry(client),
		tracker.WithSegments(client),
		tracker.WithReporter(client),
		tracker.WithStateListener(client),
		tracker.WithSegmentDir(handle.SegmentDir),
	)
	if err != nil {
		return err
	}
	err = trk.Run(ctx)
	if errors.Is(err, messaging.ErrClosed) {
		return nil
	}
	return err
}

// RunRole runs the broker or tracker role of a child process using the
// handle and owner token published in its environment
func RunRole(ctx context.Context, role string) error {
	if err := logger.SetLevel(os.Getenv(LogLevelEnv)); err != nil {
		return fmt.Errorf("invalid %s: %w", LogLevelEnv, err)
	}
	encoded := os.Getenv(model.HandleEnv)
	if encoded == "" {
		return fmt.Errorf("%s is not set", model.HandleEnv)
	}
	handle, err := model.DecodeHandle(encoded)
	if err != nil {
		return err
	}
	ownerToken := os.Getenv(OwnerTokenEnv)
	if ownerToken == "" {
		return fmt.Errorf("%s is not set", OwnerTokenEnv)
	}
	switch role {
	case roleBroker:
		return RunBroker(ctx, handle, ownerToken)
	case roleTracker:
		return RunTracker(ctx, handle, ownerToken)
	}
	return fmt.Errorf("unsupported role: %q", role)
}
