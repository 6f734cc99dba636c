// Package shmcache provides a per node object cache shared by worker
// processes through shared memory.
//
// The root package manages the cache lifecycle. Start spawns the broker,
// which owns every shared memory segment together with the name registry and
// the inbound queue, and the tracker, the single consumer applying queued
// mutations. Worker processes attach with the returned handle:
//
//	srv, handle, _ := shmcache.StartCache(ctx, shmcache.DefaultConfig())
//	defer shmcache.StopCache(ctx, srv)
//
//	cache, _ := worker.Attach(ctx, handle)
//	_ = cache.Insert(ctx, "weights", value.NewArray(data, 64, 64))
//	view, _ := cache.Retrieve(ctx, "weights")
//	weights, _ := worker.ArrayOf[float64](view)
//
// Stopping the cache destroys every segment, whether or not entries were
// removed.
package shmcache
