// Package broker hosts the allocator, the registry, the inbound queue and the
// acknowledgement board of one cache instance and exposes them to other
// processes over gRPC on a unix domain socket.
//
// Requests and responses are plain Go structs encoded with a JSON codec, so
// no generated code is involved. Every call must carry the instance bearer
// token; calls that mutate segments or the registry also need the owner token
// held by the manager and the tracker.
package broker
