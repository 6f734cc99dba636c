package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/messaging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientOption represents a client option
type ClientOption func(*Client)

// WithOwnerToken makes the client act as cache owner
func WithOwnerToken(token string) ClientOption {
	return func(c *Client) {
		c.ownerToken = token
	}
}

// WithDialOptions appends gRPC dial options
func WithDialOptions(options ...grpc.DialOption) ClientOption {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, options...)
	}
}

// Client represents a broker connection. With the owner token it implements
// every interface the tracker needs.
type Client struct {
	handle      *model.Handle
	ownerToken  string
	dialOptions []grpc.DialOption
	conn        *grpc.ClientConn
	closeOnce   sync.Once
}

// Dial connects to the broker described by handle. The connection is
// established lazily; use Ping with WaitForReady to block until it is up.
func Dial(ctx context.Context, handle *model.Handle, options ...ClientOption) (*Client, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	c := &Client{handle: handle}
	for _, opt := range options {
		opt(c)
	}
	size := maxFrameSize(handle.MaxMessageBytes)
	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(&tokenCredentials{token: handle.Token, owner: c.ownerToken}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(size),
			grpc.MaxCallSendMsgSize(size),
		),
	}, c.dialOptions...)
	conn, err := grpc.DialContext(ctx, handle.Target(), dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect broker %s: %w", handle.Address, err)
	}
	c.conn = conn
	return c, nil
}

// Handle returns the handle the client was dialed with
func (c *Client) Handle() *model.Handle {
	return c.handle
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}, options ...grpc.CallOption) error {
	return fromStatus(c.conn.Invoke(ctx, fullMethod(method), req, resp, options...))
}

// Ping checks that the broker is serving
func (c *Client) Ping(ctx context.Context, waitForReady bool) (*PingResponse, error) {
	resp := &PingResponse{}
	err := c.invoke(ctx, methodPing, &Empty{}, resp, grpc.WaitForReady(waitForReady))
	return resp, err
}

// Publish enqueues msg, blocking while the queue is full
func (c *Client) Publish(ctx context.Context, msg *model.Message) error {
	return c.invoke(ctx, methodPublish, &PublishRequest{Message: msg}, &PublishResponse{})
}

// Wait blocks until the outcome of a confirmed message is reported
func (c *Client) Wait(ctx context.Context, id string) (*model.Outcome, error) {
	resp := &OutcomeResponse{}
	if err := c.invoke(ctx, methodWait, &WaitRequest{ID: id}, resp); err != nil {
		return nil, err
	}
	return resp.Outcome, nil
}

// Lookup returns the registry entry for name or nil
func (c *Client) Lookup(ctx context.Context, name string) (*model.CacheEntry, error) {
	resp := &EntryResponse{}
	if err := c.invoke(ctx, methodLookup, &LookupRequest{Name: name}, resp); err != nil {
		return nil, err
	}
	return resp.Entry, nil
}

// Stats returns cache stats
func (c *Client) Stats(ctx context.Context) (*model.Stats, error) {
	resp := &StatsResponse{}
	if err := c.invoke(ctx, methodStats, &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

// Consume takes the next message off the broker queue
func (c *Client) Consume(ctx context.Context) (messaging.Message[model.Message], error) {
	resp := &ConsumeResponse{}
	if err := c.invoke(ctx, methodConsume, &Empty{}, resp); err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, nil
	}
	return &remoteMessage{payload: resp.Message}, nil
}

// Report sends a processed message outcome
func (c *Client) Report(ctx context.Context, outcome *model.Outcome) error {
	return c.invoke(ctx, methodReport, &ReportRequest{Outcome: outcome}, &ReportResponse{})
}

// Insert adds a registry entry
func (c *Client) Insert(ctx context.Context, entry *model.CacheEntry) error {
	return c.invoke(ctx, methodInsert, &InsertRequest{Entry: entry}, &Empty{})
}

// Remove deletes a registry entry and returns it, or nil if absent
func (c *Client) Remove(ctx context.Context, name string) (*model.CacheEntry, error) {
	resp := &EntryResponse{}
	if err := c.invoke(ctx, methodRemove, &RemoveRequest{Name: name}, resp); err != nil {
		return nil, err
	}
	return resp.Entry, nil
}

// Create allocates a segment
func (c *Client) Create(ctx context.Context, size int) (*model.SegmentHandle, error) {
	resp := &CreateSegmentResponse{}
	if err := c.invoke(ctx, methodCreateSegment, &CreateSegmentRequest{Size: size}, resp); err != nil {
		return nil, err
	}
	return resp.Segment, nil
}

// Destroy unlinks a segment
func (c *Client) Destroy(ctx context.Context, id string) error {
	return c.invoke(ctx, methodDestroySegment, &DestroySegmentRequest{ID: id}, &Empty{})
}

// SetTrackerState records tracker state on the broker
func (c *Client) SetTrackerState(ctx context.Context, state model.TrackerState) error {
	return c.invoke(ctx, methodSetTrackerState, &SetTrackerStateRequest{State: state}, &SetTrackerStateResponse{})
}

// Shutdown asks the broker to release every segment and stop
func (c *Client) Shutdown(ctx context.Context) (int, error) {
	resp := &ShutdownResponse{}
	if err := c.invoke(ctx, methodShutdown, &Empty{}, resp); err != nil {
		return 0, err
	}
	return resp.Destroyed, nil
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// remoteMessage is settled on the broker through Report
type remoteMessage struct {
	payload *model.Message
	mu      sync.Mutex
	settled bool
}

func (m *remoteMessage) T() *model.Message {
	return m.payload
}

func (m *remoteMessage) Ack() error {
	return m.settle()
}

func (m *remoteMessage) Nack(error) error {
	return m.settle()
}

func (m *remoteMessage) settle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return fmt.Errorf("message already processed")
	}
	m.settled = true
	return nil
}

var _ messaging.Queue[model.Message] = (*Client)(nil)
