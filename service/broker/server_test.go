package broker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shmcache/internal/idgen"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/messaging"
	"github.com/viant/shmcache/service/registry"
	"github.com/viant/shmcache/service/tracker"
)

const ownerToken = "owner-secret"

func startServer(t *testing.T, capacity int, options ...func(config *Config)) (*Server, *model.Handle) {
	t.Helper()
	socketDir, err := os.MkdirTemp("", "shmb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(socketDir) })
	handle := &model.Handle{
		InstanceID:      "test",
		Address:         filepath.Join(socketDir, "b.sock"),
		Token:           "bearer-secret",
		SegmentDir:      t.TempDir(),
		SegmentPrefix:   "b-",
		QueueCapacity:   capacity,
		MaxMessageBytes: 1 << 20,
	}
	config := Config{Handle: *handle, OwnerToken: ownerToken, GracePeriod: time.Second}
	for _, opt := range options {
		opt(&config)
	}
	*handle = config.Handle
	srv, err := New(config)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})
	return srv, handle
}

func dial(t *testing.T, handle *model.Handle, options ...ClientOption) *Client {
	t.Helper()
	client, err := Dial(context.Background(), handle, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.Ping(ctx, true)
	require.NoError(t, err)
	return client
}

func message(name, payload string, confirm bool) *model.Message {
	return &model.Message{
		ID: idgen.New(), Action: model.ActionPut, Name: name,
		ByteSize: len(payload), ElementType: model.TypeBytes, Kind: model.KindOpaque,
		Payload: []byte(payload), Confirm: confirm,
	}
}

func TestServer_Auth(t *testing.T) {
	_, handle := startServer(t, 4)
	ctx := context.Background()

	wrong := *handle
	wrong.Token = "wrong"
	client, err := Dial(ctx, &wrong)
	require.NoError(t, err)
	defer client.Close()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = client.Ping(waitCtx, true)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	worker := dial(t, handle)
	_, err = worker.Create(ctx, 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = worker.Shutdown(ctx)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	err = worker.Publish(ctx, &model.Message{ID: "s", Action: model.ActionStop})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	impostor := dial(t, handle, WithOwnerToken("not-owner"))
	_, err = impostor.Consume(ctx)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	owner := dial(t, handle, WithOwnerToken(ownerToken))
	segment, err := owner.Create(ctx, 10)
	require.NoError(t, err)
	assert.NoError(t, owner.Destroy(ctx, segment.ID))
	assert.ErrorIs(t, owner.Destroy(ctx, segment.ID), allocator.ErrNotFound)
}

func TestServer_Backpressure(t *testing.T) {
	_, handle := startServer(t, 1)
	worker := dial(t, handle)

	require.NoError(t, worker.Publish(context.Background(), message("a", "1", false)))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := worker.Publish(ctx, message("b", "2", false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServer_RegistryErrors(t *testing.T) {
	_, handle := startServer(t, 4)
	owner := dial(t, handle, WithOwnerToken(ownerToken))
	ctx := context.Background()
	entry := &model.CacheEntry{Name: "a", SegmentID: "s", ByteSize: 1, ElementType: model.TypeBytes, Kind: model.KindOpaque}
	require.NoError(t, owner.Insert(ctx, entry))
	assert.ErrorIs(t, owner.Insert(ctx, entry), registry.ErrAlreadyExists)

	actual, err := owner.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "s", actual.SegmentID)
	removed, err := owner.Remove(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, removed)
	missing, err := owner.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestServer_TrackerRoundTrip(t *testing.T) {
	srv, handle := startServer(t, 8)
	owner := dial(t, handle, WithOwnerToken(ownerToken))
	worker := dial(t, handle)

	trk, err := tracker.New(
		tracker.WithQueue(owner),
		tracker.WithRegistry(owner),
		tracker.WithSegments(owner),
		tracker.WithReporter(owner),
		tracker.WithStateListener(owner),
		tracker.WithSegmentDir(handle.SegmentDir),
	)
	require.NoError(t, err)
	trackerDone := make(chan error, 1)
	go func() { trackerDone <- trk.Run(context.Background()) }()

	ctx := context.Background()
	require.Eventually(t, func() bool { return srv.TrackerState() == model.TrackerRunning }, 5*time.Second, 10*time.Millisecond)

	msg := message("a", "hello", true)
	require.NoError(t, worker.Publish(ctx, msg))
	outcome, err := worker.Wait(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CodeOK, outcome.Code)

	duplicate := message("a", "again", true)
	require.NoError(t, worker.Publish(ctx, duplicate))
	outcome, err = worker.Wait(ctx, duplicate.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CodeDuplicateName, outcome.Code)

	entry, err := worker.Lookup(ctx, "a")
	require.NoError(t, err)
	attachment, err := allocator.Attach(handle.SegmentDir, entry.SegmentID)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(attachment.Bytes()[:entry.ByteSize]))
	require.NoError(t, attachment.Close())

	require.NoError(t, owner.Publish(ctx, &model.Message{ID: "stop", Action: model.ActionStop}))
	select {
	case err = <-trackerDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not stop")
	}
	err = worker.Publish(ctx, message("b", "x", false))
	assert.ErrorIs(t, err, ErrUnavailable)

	stats, err := worker.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 3, stats.Counters.Processed)
	assert.Equal(t, 1, stats.Counters.Failed)

	destroyed, err := owner.Shutdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, destroyed)
	files, err := os.ReadDir(handle.SegmentDir)
	require.NoError(t, err)
	assert.Empty(t, files)
	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_DegradedAbortsWaits(t *testing.T) {
	_, handle := startServer(t, 4)
	owner := dial(t, handle, WithOwnerToken(ownerToken))
	worker := dial(t, handle)
	ctx := context.Background()

	msg := message("a", "x", true)
	require.NoError(t, worker.Publish(ctx, msg))
	waited := make(chan *model.Outcome, 1)
	go func() {
		outcome, _ := worker.Wait(ctx, msg.ID)
		waited <- outcome
	}()
	require.NoError(t, owner.SetTrackerState(ctx, model.TrackerDegraded))

	select {
	case outcome := <-waited:
		require.NotNil(t, outcome)
		assert.Equal(t, model.CodeTrackerUnavailable, outcome.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("wait was not aborted")
	}
	assert.ErrorIs(t, worker.Publish(ctx, message("b", "x", false)), ErrUnavailable)
	_, err := worker.Lookup(ctx, "a")
	assert.NoError(t, err)
}

func TestServer_DegradedDropsInflight(t *testing.T) {
	srv, handle := startServer(t, 4)
	owner := dial(t, handle, WithOwnerToken(ownerToken))
	worker := dial(t, handle)
	ctx := context.Background()

	msg := message("a", "x", true)
	require.NoError(t, worker.Publish(ctx, msg))
	consumed, err := owner.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, consumed.T().ID)
	assert.Equal(t, 1, srv.Inflight())

	require.NoError(t, owner.SetTrackerState(ctx, model.TrackerDegraded))
	outcome, err := worker.Wait(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CodeTrackerUnavailable, outcome.Code)

	stats, err := worker.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inflight)
	assert.Equal(t, 1, stats.DeadLetters)
	assert.Equal(t, 1, stats.Counters.Failed)
	assert.Equal(t, 4, stats.QueueCapacity)
}

func TestServer_DeadLettersWithoutPayload(t *testing.T) {
	_, handle := startServer(t, 4, func(config *Config) { config.Handle.Profiling = true })
	owner := dial(t, handle, WithOwnerToken(ownerToken))
	worker := dial(t, handle)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		require.NoError(t, worker.Publish(ctx, message(name, "payload", false)))
		consumed, err := owner.Consume(ctx)
		require.NoError(t, err)
		msg := consumed.T()
		require.NoError(t, owner.Report(ctx, model.NewOutcome(msg, model.CodeDuplicateName, errors.New("exists"))))
	}

	stats, err := owner.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DeadLetters)
	require.Len(t, stats.Rejected, 2)
	for _, rejected := range stats.Rejected {
		assert.Empty(t, rejected.Message.Payload)
		assert.Equal(t, 7, rejected.Message.ByteSize)
		assert.Contains(t, rejected.Error, "exists")
	}
}

func TestServer_ExpiresUncollectedConfirmations(t *testing.T) {
	srv, handle := startServer(t, 4, func(config *Config) { config.ExpireAfter = 100 * time.Millisecond })
	worker := dial(t, handle)
	require.NoError(t, worker.Publish(context.Background(), message("a", "x", true)))
	assert.Equal(t, 1, srv.board.Pending())
	require.Eventually(t, func() bool { return srv.board.Pending() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestServer_ShutdownClosesConsumers(t *testing.T) {
	srv, handle := startServer(t, 4)
	owner := dial(t, handle, WithOwnerToken(ownerToken))
	consumed := make(chan error, 1)
	go func() {
		_, err := owner.Consume(context.Background())
		consumed <- err
	}()
	time.Sleep(50 * time.Millisecond)
	_, err := srv.release(context.Background())
	require.NoError(t, err)
	select {
	case err = <-consumed:
		assert.ErrorIs(t, err, messaging.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer was not released")
	}
}

func TestConfig_Validate(t *testing.T) {
	config := Config{Handle: model.Handle{Address: "a", Token: "t", SegmentDir: "d", QueueCapacity: 1}, OwnerToken: "t"}
	assert.Error(t, config.Validate())
	config.OwnerToken = "o"
	assert.NoError(t, config.Validate())
}
