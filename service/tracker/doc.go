// Package tracker implements the single consumer that applies queued cache
// mutations. It is the only component that asks the allocator to create or
// destroy segments, and the only writer of the registry.
//
// Messages are processed strictly in queue order. A put registers its entry
// only after the payload has been copied into the new segment; a replace or
// remove deregisters the old entry before its segment is destroyed.
package tracker
