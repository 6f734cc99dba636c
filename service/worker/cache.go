package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/viant/shmcache/internal/clock"
	"github.com/viant/shmcache/internal/idgen"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/model/value"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/broker"
)

// DefaultConfirmTimeout bounds confirmed calls when no timeout is configured
const DefaultConfirmTimeout = 30 * time.Second

// Cache represents a worker process connection to a running cache
type Cache struct {
	handle         *model.Handle
	client         *broker.Client
	confirmTimeout time.Duration
	sender         int

	mu     sync.Mutex
	views  map[*View]struct{}
	closed bool
}

// Attach connects to the cache described by handle
func Attach(ctx context.Context, handle *model.Handle, options ...Option) (*Cache, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	confirmTimeout := DefaultConfirmTimeout
	if handle.ConfirmTimeout > 0 {
		confirmTimeout = handle.ConfirmTimeout
	}
	c := &Cache{
		handle:         handle,
		confirmTimeout: confirmTimeout,
		sender:         os.Getpid(),
		views:          make(map[*View]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.client == nil {
		client, err := broker.Dial(ctx, handle)
		if err != nil {
			return nil, err
		}
		c.client = client
	}
	return c, nil
}

// AttachFromEnv attaches to the cache published in SHMCACHE_HANDLE
func AttachFromEnv(ctx context.Context, options ...Option) (*Cache, error) {
	encoded := os.Getenv(model.HandleEnv)
	if encoded == "" {
		return nil, ErrNoHandle
	}
	handle, err := model.DecodeHandle(encoded)
	if err != nil {
		return nil, err
	}
	return Attach(ctx, handle, options...)
}

// Handle returns the cache handle
func (c *Cache) Handle() *model.Handle {
	return c.handle
}

// Insert stores value under name. Without Confirm an existing name is
// silently kept; with Confirm it yields ErrDuplicateName.
func (c *Cache) Insert(ctx context.Context, name string, v interface{}, options ...CallOption) error {
	return c.mutate(ctx, model.ActionPut, name, v, options)
}

// Replace swaps the value stored under name
func (c *Cache) Replace(ctx context.Context, name string, v interface{}, options ...CallOption) error {
	return c.mutate(ctx, model.ActionReplace, name, v, options)
}

// Remove deletes name; removing an absent name is not an error
func (c *Cache) Remove(ctx context.Context, name string, options ...CallOption) error {
	if name == "" {
		return fmt.Errorf("name was empty")
	}
	msg := &model.Message{ID: idgen.New(), Action: model.ActionRemove, Name: name, Sender: c.sender, CreatedAt: clock.Now()}
	return c.send(ctx, msg, options)
}

func (c *Cache) mutate(ctx context.Context, action model.Action, name string, v interface{}, options []CallOption) error {
	if name == "" {
		return fmt.Errorf("name was empty")
	}
	meta, data, err := value.Flatten(v)
	if err != nil {
		return err
	}
	if limit := c.handle.MaxMessageBytes; limit > 0 && len(data) > limit {
		return fmt.Errorf("%w: %q has %d bytes, limit %d", ErrTooLarge, name, len(data), limit)
	}
	msg := &model.Message{
		ID:          idgen.New(),
		Action:      action,
		Name:        name,
		ByteSize:    len(data),
		ElementType: meta.Type,
		Shape:       meta.Shape,
		Kind:        meta.Kind,
		Payload:     data,
		Sender:      c.sender,
		CreatedAt:   clock.Now(),
	}
	return c.send(ctx, msg, options)
}

func (c *Cache) send(ctx context.Context, msg *model.Message, options []CallOption) error {
	if c.isClosed() {
		return ErrClosed
	}
	opts := &call{}
	for _, opt := range options {
		opt(opts)
	}
	msg.Confirm = opts.confirm
	if err := c.client.Publish(ctx, msg); err != nil {
		if errors.Is(err, broker.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
		}
		return err
	}
	if !opts.confirm {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	outcome, err := c.client.Wait(waitCtx, msg.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %q", ErrTimeout, msg.Action, msg.Name)
		}
		if errors.Is(err, broker.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
		}
		return err
	}
	return outcomeError(outcome)
}

// Retrieve maps the value stored under name. It never waits for the tracker.
func (c *Cache) Retrieve(ctx context.Context, name string) (*View, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	entry, err := c.client.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	attachment, err := allocator.Attach(c.handle.SegmentDir, entry.SegmentID)
	if err != nil {
		if errors.Is(err, allocator.ErrNotFound) {
			// removed between lookup and attach
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, err
	}
	if attachment.Len() < entry.ByteSize {
		_ = attachment.Close()
		return nil, fmt.Errorf("segment %s of %q is truncated", entry.SegmentID, name)
	}
	view := &View{entry: entry, attachment: attachment, cache: c}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = attachment.Close()
		return nil, ErrClosed
	}
	c.views[view] = struct{}{}
	return view, nil
}

// Release unmaps view; releasing twice is a no-op
func (c *Cache) Release(view *View) error {
	if view == nil {
		return nil
	}
	c.mu.Lock()
	delete(c.views, view)
	c.mu.Unlock()
	return view.attachment.Close()
}

// ReleaseAll unmaps every view retrieved through this cache
func (c *Cache) ReleaseAll() error {
	c.mu.Lock()
	views := make([]*View, 0, len(c.views))
	for view := range c.views {
		views = append(views, view)
	}
	c.views = make(map[*View]struct{})
	c.mu.Unlock()

	var errs *multierror.Error
	for _, view := range views {
		if err := view.attachment.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// References returns number of live views
func (c *Cache) References() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.views)
}

// Stats returns cache stats
func (c *Cache) Stats(ctx context.Context) (*model.Stats, error) {
	return c.client.Stats(ctx)
}

// Close releases every view and closes the connection. It never destroys
// segments.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs *multierror.Error
	if err := c.ReleaseAll(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := c.client.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
