package allocator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shmcache/model"
)

func newService(t *testing.T, maxBytes int64) *Service {
	t.Helper()
	srv, err := New(Config{Dir: t.TempDir(), Prefix: "test-", MaxBytes: maxBytes, Journal: true})
	require.NoError(t, err)
	return srv
}

func TestService_Create(t *testing.T) {
	testCases := []struct {
		description string
		maxBytes    int64
		sizes       []int
		expectErr   error
		expectBytes int64
	}{
		{description: "single segment", sizes: []int{128}, expectBytes: 128},
		{description: "zero size reserves one byte", sizes: []int{0}, expectBytes: 1},
		{description: "within limit", maxBytes: 100, sizes: []int{40, 60}, expectBytes: 100},
		{description: "limit exceeded", maxBytes: 100, sizes: []int{60, 41}, expectErr: ErrLimitExceeded, expectBytes: 60},
	}

	for _, testCase := range testCases {
		srv := newService(t, testCase.maxBytes)
		var err error
		for _, size := range testCase.sizes {
			if _, err = srv.Create(context.Background(), size); err != nil {
				break
			}
		}
		if testCase.expectErr != nil {
			assert.ErrorIs(t, err, testCase.expectErr, testCase.description)
		} else {
			assert.NoError(t, err, testCase.description)
		}
		_, used := srv.Usage()
		assert.Equal(t, testCase.expectBytes, used, testCase.description)
	}
}

func TestService_LimitCheckedBeforeFilesystem(t *testing.T) {
	srv := newService(t, 10)
	_, err := srv.Create(context.Background(), 11)
	require.ErrorIs(t, err, ErrLimitExceeded)
	entries, err := os.ReadDir(srv.config.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_AttachSharesMemory(t *testing.T) {
	srv := newService(t, 0)
	handle, err := srv.Create(context.Background(), 16)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle.ID, "test-"))

	writer, err := srv.Attach(handle.ID)
	require.NoError(t, err)
	reader, err := Attach(srv.config.Dir, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, reader.Len())

	copy(writer.Bytes(), "shared")
	assert.Equal(t, "shared", string(reader.Bytes()[:6]))

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())
	assert.True(t, writer.Closed())
	require.NoError(t, reader.Close())
}

func TestService_Destroy(t *testing.T) {
	srv := newService(t, 0)
	ctx := context.Background()
	handle, err := srv.Create(ctx, 8)
	require.NoError(t, err)

	live, err := srv.Attach(handle.ID)
	require.NoError(t, err)
	copy(live.Bytes(), "abc")

	require.NoError(t, srv.Destroy(ctx, handle.ID))
	assert.ErrorIs(t, srv.Destroy(ctx, handle.ID), ErrNotFound)

	_, err = Attach(srv.config.Dir, handle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	// existing mapping stays readable after unlink
	assert.Equal(t, "abc", string(live.Bytes()[:3]))
	require.NoError(t, live.Close())

	count, used := srv.Usage()
	assert.Equal(t, 0, count)
	assert.EqualValues(t, 0, used)
}

func TestService_DestroyAll(t *testing.T) {
	srv := newService(t, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := srv.Create(ctx, 4)
		require.NoError(t, err)
	}
	destroyed, err := srv.DestroyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, destroyed)
	entries, err := os.ReadDir(srv.config.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	journal := srv.Journal()
	require.Len(t, journal, 6)
	for i := 1; i < len(journal); i++ {
		assert.Greater(t, journal[i].Seq, journal[i-1].Seq)
	}
	assert.Equal(t, model.SegmentCreate, journal[0].Op)
	assert.Equal(t, model.SegmentDestroy, journal[5].Op)
}

func TestService_ConcurrentCreateHonoursLimit(t *testing.T) {
	srv := newService(t, 50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := srv.Create(context.Background(), 10); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, created)
	_, used := srv.Usage()
	assert.EqualValues(t, 50, used)
}

func TestAttach_InvalidID(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"", "..", "../etc/passwd", filepath.Join("a", "b")} {
		_, err := Attach(dir, id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
	_, err := Attach(dir, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
