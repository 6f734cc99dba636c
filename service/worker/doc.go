// Package worker is the client side of the cache used inside worker
// processes.
//
// Mutations are sent to the tracker through the broker queue and are fire
// and forget unless the Confirm call option is used. Reads go straight to the
// registry and map the segment in place, so a View aliases shared memory and
// must be released, typically at the end of a task with ReleaseAll.
package worker
