package tracker

import (
	"context"

	"github.com/viant/shmcache/model"
)

// Registry represents the registry operations used by the tracker
type Registry interface {
	Insert(ctx context.Context, entry *model.CacheEntry) error
	Lookup(ctx context.Context, name string) (*model.CacheEntry, error)
	Remove(ctx context.Context, name string) (*model.CacheEntry, error)
}

// Segments represents the allocator operations used by the tracker
type Segments interface {
	Create(ctx context.Context, size int) (*model.SegmentHandle, error)
	Destroy(ctx context.Context, id string) error
}

// Reporter receives an outcome for every processed message
type Reporter interface {
	Report(ctx context.Context, outcome *model.Outcome) error
}

// StateListener is notified about tracker state changes
type StateListener interface {
	SetTrackerState(ctx context.Context, state model.TrackerState) error
}
