package proc

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	testCases := []struct {
		description string
		fn          func(ctx context.Context) error
		terminate   bool
		expectErr   string
	}{
		{description: "returns nil", fn: func(context.Context) error { return nil }},
		{description: "returns error", fn: func(context.Context) error { return errors.New("boom") }, expectErr: "boom"},
		{description: "panics", fn: func(context.Context) error { panic("bad") }, expectErr: "panicked: bad"},
		{
			description: "terminated",
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			terminate: true,
			expectErr: context.Canceled.Error(),
		},
	}
	for _, testCase := range testCases {
		child := Go(context.Background(), "test", testCase.fn)
		if testCase.terminate {
			assert.False(t, child.Exited(), testCase.description)
			require.NoError(t, child.Terminate())
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := child.Wait(ctx)
		cancel()
		if testCase.expectErr == "" {
			assert.NoError(t, err, testCase.description)
			continue
		}
		require.Error(t, err, testCase.description)
		assert.Contains(t, err.Error(), testCase.expectErr, testCase.description)
	}
}

func TestExec(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	child, err := Exec(context.Background(), "sleeper", sleep, []string{"30"})
	require.NoError(t, err)
	assert.NotZero(t, child.Pid())
	require.NoError(t, child.Terminate())
	select {
	case <-child.Done():
		assert.Error(t, child.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	assert.NoError(t, child.Terminate())
}
