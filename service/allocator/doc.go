// Package allocator owns the shared memory segments of a cache instance. Its
// Service is the only component allowed to create or destroy a segment; any
// process may Attach to an existing segment by id to read or write it.
//
// Segments are files in a tmpfs directory (normally /dev/shm) mapped with
// MAP_SHARED. Unlinking a segment keeps existing mappings valid until they are
// closed, while new attaches fail with ErrNotFound.
package allocator
