package allocator

import "errors"

var (
	// ErrInsufficientSpace is returned when the OS cannot back a segment.
	ErrInsufficientSpace = errors.New("allocator: insufficient space")

	// ErrLimitExceeded is returned when the configured aggregate size would be exceeded.
	ErrLimitExceeded = errors.New("allocator: limit exceeded")

	// ErrNotFound is returned for stale or unknown segment ids; callers treat it as a cache miss.
	ErrNotFound = errors.New("allocator: segment not found")

	// ErrInvalidID is returned for ids that do not name a segment of this cache.
	ErrInvalidID = errors.New("allocator: invalid segment id")
)
