// Package model contains the types shared by every shmcache process: the
// registry entry describing a cached object, the queue message that carries
// mutating work to the tracker, the outcome reported back, and the handle
// that lets a worker process attach to a running cache.
//
// Sub-package value defines the closed set of Go values that can be
// flattened into a shared memory segment and viewed back without copying.
package model
