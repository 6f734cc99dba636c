// Package messaging defines the queue abstraction between cache workers and
// the tracker. Implementations must deliver messages in publish order.
package messaging
