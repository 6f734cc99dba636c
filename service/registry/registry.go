// Package registry maps cache entry names to the segments holding their bytes.
package registry

import (
	"context"
	"errors"

	"github.com/viant/shmcache/model"
)

// ErrAlreadyExists is returned when inserting a name that is already registered
var ErrAlreadyExists = errors.New("registry: name already exists")

// Registry represents the name to entry mapping of a cache instance
type Registry interface {
	// Insert adds entry, failing with ErrAlreadyExists if its name is taken
	Insert(ctx context.Context, entry *model.CacheEntry) error

	// Lookup returns the entry for name, or nil if absent
	Lookup(ctx context.Context, name string) (*model.CacheEntry, error)

	// Remove deletes and returns the entry for name, or nil if absent
	Remove(ctx context.Context, name string) (*model.CacheEntry, error)

	// Len returns number of entries
	Len() int

	// List returns all entries ordered by name
	List() []*model.CacheEntry
}
