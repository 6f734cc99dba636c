package worker

import (
	"time"

	"github.com/viant/shmcache/service/broker"
)

// Option represents a cache option
type Option func(*Cache)

// WithConfirmTimeout sets how long confirmed calls wait for the tracker
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		c.confirmTimeout = timeout
	}
}

// WithClient uses an existing broker client; Close will close it
func WithClient(client *broker.Client) Option {
	return func(c *Cache) {
		c.client = client
	}
}

// CallOption represents a per call option
type CallOption func(*call)

type call struct {
	confirm bool
}

// Confirm waits until the tracker processed the message and returns its outcome as error
func Confirm() CallOption {
	return func(c *call) {
		c.confirm = true
	}
}
