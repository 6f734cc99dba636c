package tracker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/messaging/memory"
	"github.com/viant/shmcache/service/registry"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []*model.Outcome
	states   []model.TrackerState
}

func (r *recorder) Report(_ context.Context, outcome *model.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *recorder) SetTrackerState(_ context.Context, state model.TrackerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return nil
}

func (r *recorder) codes() []model.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []model.Code
	for _, outcome := range r.outcomes {
		ret = append(ret, outcome.Code)
	}
	return ret
}

type fixture struct {
	dir      string
	segments *allocator.Service
	registry *registry.Memory
	queue    *memory.Queue[model.Message]
	recorder *recorder
	tracker  *Service
}

func newFixture(t *testing.T, maxBytes int64) *fixture {
	t.Helper()
	dir := t.TempDir()
	segments, err := allocator.New(allocator.Config{Dir: dir, Prefix: "t-", MaxBytes: maxBytes})
	require.NoError(t, err)
	f := &fixture{
		dir:      dir,
		segments: segments,
		registry: registry.NewMemory(),
		queue:    memory.NewQueue[model.Message](memory.Config{QueueBuffer: 16}),
		recorder: &recorder{},
	}
	f.tracker, err = New(
		WithQueue(f.queue),
		WithRegistry(f.registry),
		WithSegments(f.segments),
		WithReporter(f.recorder),
		WithStateListener(f.recorder),
		WithSegmentDir(dir),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, messages ...*model.Message) {
	t.Helper()
	ctx := context.Background()
	for _, msg := range messages {
		require.NoError(t, f.queue.Publish(ctx, msg))
	}
	require.NoError(t, f.queue.Publish(ctx, &model.Message{ID: "stop", Action: model.ActionStop}))
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.tracker.Run(ctx))
}

func put(id, name string, payload string) *model.Message {
	return &model.Message{ID: id, Action: model.ActionPut, Name: name, ByteSize: len(payload), ElementType: model.TypeBytes, Kind: model.KindOpaque, Payload: []byte(payload)}
}

func TestService_Run(t *testing.T) {
	testCases := []struct {
		description string
		maxBytes    int64
		messages    []*model.Message
		expectCodes []model.Code
		expect      map[string]string
	}{
		{
			description: "put then lookup",
			messages:    []*model.Message{put("1", "a", "alpha")},
			expectCodes: []model.Code{model.CodeOK, model.CodeOK},
			expect:      map[string]string{"a": "alpha"},
		},
		{
			description: "duplicate put keeps first value",
			messages:    []*model.Message{put("1", "a", "first"), put("2", "a", "second")},
			expectCodes: []model.Code{model.CodeOK, model.CodeDuplicateName, model.CodeOK},
			expect:      map[string]string{"a": "first"},
		},
		{
			description: "replace existing",
			messages: []*model.Message{put("1", "a", "old"), {
				ID: "2", Action: model.ActionReplace, Name: "a", ByteSize: 3, ElementType: model.TypeBytes, Kind: model.KindOpaque, Payload: []byte("new"),
			}},
			expectCodes: []model.Code{model.CodeOK, model.CodeOK, model.CodeOK},
			expect:      map[string]string{"a": "new"},
		},
		{
			description: "replace absent",
			messages: []*model.Message{{
				ID: "1", Action: model.ActionReplace, Name: "x", ByteSize: 1, ElementType: model.TypeBytes, Kind: model.KindOpaque, Payload: []byte("x"),
			}},
			expectCodes: []model.Code{model.CodeNotFound, model.CodeOK},
			expect:      map[string]string{},
		},
		{
			description: "remove is idempotent",
			messages: []*model.Message{put("1", "a", "v"),
				{ID: "2", Action: model.ActionRemove, Name: "a"},
				{ID: "3", Action: model.ActionRemove, Name: "a"},
			},
			expectCodes: []model.Code{model.CodeOK, model.CodeOK, model.CodeOK, model.CodeOK},
			expect:      map[string]string{},
		},
		{
			description: "limit exceeded",
			maxBytes:    4,
			messages:    []*model.Message{put("1", "a", "toolong")},
			expectCodes: []model.Code{model.CodeLimitExceeded, model.CodeOK},
			expect:      map[string]string{},
		},
		{
			description: "invalid message",
			messages:    []*model.Message{{ID: "1", Action: model.ActionPut, Name: "", Payload: []byte("x"), ByteSize: 1}},
			expectCodes: []model.Code{model.CodeInvalid, model.CodeOK},
			expect:      map[string]string{},
		},
	}

	for _, testCase := range testCases {
		f := newFixture(t, testCase.maxBytes)
		f.run(t, testCase.messages...)
		assert.Equal(t, testCase.expectCodes, f.recorder.codes(), testCase.description)
		assert.Equal(t, []model.TrackerState{model.TrackerRunning, model.TrackerStopped}, f.recorder.states, testCase.description)
		assert.Equal(t, len(testCase.expect), f.registry.Len(), testCase.description)

		for name, expect := range testCase.expect {
			entry, err := f.registry.Lookup(context.Background(), name)
			require.NoError(t, err, testCase.description)
			require.NotNil(t, entry, testCase.description)
			attachment, err := allocator.Attach(f.dir, entry.SegmentID)
			require.NoError(t, err, testCase.description)
			assert.Equal(t, expect, string(attachment.Bytes()[:entry.ByteSize]), testCase.description)
			_ = attachment.Close()
		}
		// no segment outlives its registry entry
		files, err := os.ReadDir(f.dir)
		require.NoError(t, err)
		assert.Equal(t, len(testCase.expect), len(files), testCase.description)
	}
}

func TestService_StopDoesNotDrain(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, f.queue.Publish(ctx, &model.Message{ID: "stop", Action: model.ActionStop}))
	require.NoError(t, f.queue.Publish(ctx, put("1", "late", "x")))
	require.NoError(t, f.tracker.Run(ctx))
	assert.Equal(t, 1, f.queue.Size())
	assert.Equal(t, 0, f.registry.Len())
}

func TestService_RunCancelled(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.tracker.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type failingRegistry struct {
	*registry.Memory
}

func (f *failingRegistry) Insert(context.Context, *model.CacheEntry) error {
	return errors.New("insert failed")
}

func TestService_FailedPutLeavesNoSegment(t *testing.T) {
	f := newFixture(t, 0)
	var err error
	f.tracker, err = New(
		WithQueue(f.queue),
		WithRegistry(&failingRegistry{Memory: f.registry}),
		WithSegments(f.segments),
		WithReporter(f.recorder),
		WithSegmentDir(f.dir),
	)
	require.NoError(t, err)
	f.run(t, put("1", "a", "value"))
	assert.Equal(t, []model.Code{model.CodeInternal, model.CodeOK}, f.recorder.codes())
	count, used := f.segments.Usage()
	assert.Equal(t, 0, count)
	assert.EqualValues(t, 0, used)
}

func TestNew_Validation(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}
