package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/shmcache/internal/idgen"
	"github.com/viant/shmcache/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	DeadLetter bool
	// DeadLetterLimit bounds retained dead letters; the oldest are dropped first
	DeadLetterLimit int
	QueueBuffer     int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		DeadLetter:      true,
		DeadLetterLimit: 256,
		QueueBuffer:     100,
	}
}

// Option represents a queue option
type Option[T any] func(q *Queue[T])

// WithDeadLetterTrim sets a function applied to the copy of a payload kept
// in the dead letter list, e.g. to drop large fields
func WithDeadLetterTrim[T any](trim func(t *T)) Option[T] {
	return func(q *Queue[T]) {
		q.trim = trim
	}
}

// Message implements messaging.Message for in-memory queue
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	mu        sync.Mutex
	processed bool
	err       error
	createdAt time.Time
}

// ID returns queue assigned message id
func (m *Message[T]) ID() string {
	return m.id
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Err returns the error supplied to Nack
func (m *Message[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return nil
}

// Nack marks the message as failed. Messages are never redelivered since
// that would break publish order; with DeadLetter they are kept for inspection.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	if m.processed {
		m.mu.Unlock()
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.err = err
	m.mu.Unlock()

	m.queue.deadLetter(m, err)
	return nil
}

// Queue implements a bounded in-memory FIFO messaging.Queue. Publish blocks
// while the queue is full.
type Queue[T any] struct {
	messages  chan *Message[T]
	closed    chan struct{}
	closeOnce sync.Once
	config    Config
	trim      func(t *T)

	dlqMu    sync.Mutex
	dlq      []*Message[T]
	dlqTotal int
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config, options ...Option[T]) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	if config.DeadLetterLimit <= 0 {
		config.DeadLetterLimit = DefaultConfig().DeadLetterLimit
	}
	ret := &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		closed:   make(chan struct{}),
		dlq:      make([]*Message[T], 0),
		config:   config,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// deadLetter keeps a trimmed copy of a nacked message, evicting the oldest
// once DeadLetterLimit is reached
func (q *Queue[T]) deadLetter(m *Message[T], err error) {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	q.dlqTotal++
	if !q.config.DeadLetter {
		return
	}
	payload := m.payload
	if q.trim != nil {
		q.trim(&payload)
	}
	letter := &Message[T]{id: m.id, payload: payload, queue: q, processed: true, err: err, createdAt: m.createdAt}
	if len(q.dlq) >= q.config.DeadLetterLimit {
		copy(q.dlq, q.dlq[1:])
		q.dlq = q.dlq[:len(q.dlq)-1]
	}
	q.dlq = append(q.dlq, letter)
}

// Publish adds a new item to the queue, waiting for room until ctx is done
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("payload was nil")
	}
	select {
	case <-q.closed:
		return messaging.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := &Message[T]{
		id:        idgen.New(),
		payload:   *t,
		queue:     q,
		createdAt: time.Now(),
	}
	select {
	case q.messages <- msg:
		return nil
	case <-q.closed:
		return messaging.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume retrieves the oldest item, waiting until one is available
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case <-q.closed:
		return nil, messaging.ErrClosed
	default:
	}
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.closed:
		return nil, messaging.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue; blocked publishers and consumers return ErrClosed
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// Capacity returns the queue bound
func (q *Queue[T]) Capacity() int {
	return cap(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// Nacked returns the number of messages nacked since the queue was created
func (q *Queue[T]) Nacked() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return q.dlqTotal
}

// DeadLetters returns retained nacked messages, oldest first
func (q *Queue[T]) DeadLetters() []*Message[T] {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]*Message[T](nil), q.dlq...)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
