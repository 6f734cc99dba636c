package worker

import (
	"errors"
	"fmt"

	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/model/value"
	"github.com/viant/shmcache/service/allocator"
)

var (
	// ErrNotFound is returned for absent names
	ErrNotFound = errors.New("shmcache: not found")

	// ErrDuplicateName is returned by a confirmed insert of an existing name
	ErrDuplicateName = errors.New("shmcache: duplicate name")

	// ErrUnsupported is returned for values that cannot be cached
	ErrUnsupported = value.ErrUnsupported

	// ErrTrackerUnavailable is returned by mutations once the tracker is gone
	ErrTrackerUnavailable = errors.New("shmcache: tracker unavailable")

	// ErrTimeout is returned when a confirmation does not arrive in time
	ErrTimeout = errors.New("shmcache: confirmation timeout")

	// ErrTooLarge is returned for payloads above the handle message limit
	ErrTooLarge = errors.New("shmcache: value too large")

	// ErrClosed is returned by a closed cache
	ErrClosed = errors.New("shmcache: cache closed")

	// ErrNoHandle is returned by AttachFromEnv when no handle is published
	ErrNoHandle = errors.New("shmcache: no cache handle in environment")
)

// outcomeError converts a tracker outcome to an error
func outcomeError(outcome *model.Outcome) error {
	if outcome == nil {
		return fmt.Errorf("outcome was empty")
	}
	switch outcome.Code {
	case model.CodeOK:
		return nil
	case model.CodeNotFound:
		return fmt.Errorf("%w: %q", ErrNotFound, outcome.Name)
	case model.CodeDuplicateName:
		return fmt.Errorf("%w: %q", ErrDuplicateName, outcome.Name)
	case model.CodeLimitExceeded:
		return fmt.Errorf("%w: %s", allocator.ErrLimitExceeded, outcome.Message)
	case model.CodeInsufficientSpace:
		return fmt.Errorf("%w: %s", allocator.ErrInsufficientSpace, outcome.Message)
	case model.CodeTrackerUnavailable:
		return fmt.Errorf("%w: %s", ErrTrackerUnavailable, outcome.Message)
	}
	return fmt.Errorf("%s %q failed (%s): %s", outcome.Action, outcome.Name, outcome.Code, outcome.Message)
}
