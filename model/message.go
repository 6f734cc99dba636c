package model

import (
	"fmt"
	"time"

	"github.com/viant/shmcache/internal/clock"
)

// Action represents a mutating cache operation
type Action string

const (
	ActionPut     Action = "put"
	ActionReplace Action = "replace"
	ActionRemove  Action = "remove"
	// ActionStop asks the tracker to exit its loop; only the manager sends it.
	ActionStop Action = "stop"
)

// Message represents a unit of mutating work processed by the tracker
type Message struct {
	ID          string        `json:"id"`
	Action      Action        `json:"action"`
	Name        string        `json:"name,omitempty"`
	ByteSize    int           `json:"byteSize,omitempty"`
	ElementType TypeTag       `json:"elementType,omitempty"`
	Shape       []int         `json:"shape,omitempty"`
	Kind        ContainerKind `json:"kind,omitempty"`
	Payload     []byte        `json:"payload,omitempty"`
	Confirm     bool          `json:"confirm,omitempty"`
	Sender      int           `json:"sender,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// HasPayload returns true for actions that carry object bytes
func (m *Message) HasPayload() bool {
	return m.Action == ActionPut || m.Action == ActionReplace
}

// Validate checks message consistency
func (m *Message) Validate() error {
	switch m.Action {
	case ActionPut, ActionReplace, ActionRemove:
		if m.Name == "" {
			return fmt.Errorf("%v: name was empty", m.Action)
		}
	case ActionStop:
		return nil
	default:
		return fmt.Errorf("unsupported action: %q", m.Action)
	}
	if !m.HasPayload() {
		return nil
	}
	if m.ByteSize != len(m.Payload) {
		return fmt.Errorf("%v %q: byte size %d does not match payload length %d", m.Action, m.Name, m.ByteSize, len(m.Payload))
	}
	return m.Entry("pending").Validate()
}

// Entry returns the registry entry describing the message payload stored in segmentID
func (m *Message) Entry(segmentID string) *CacheEntry {
	return &CacheEntry{
		Name:        m.Name,
		SegmentID:   segmentID,
		ByteSize:    m.ByteSize,
		ElementType: m.ElementType,
		Shape:       append([]int(nil), m.Shape...),
		Kind:        m.Kind,
	}
}

// Code classifies a processed message outcome
type Code string

const (
	CodeOK                 Code = "ok"
	CodeNotFound           Code = "not_found"
	CodeDuplicateName      Code = "duplicate_name"
	CodeLimitExceeded      Code = "limit_exceeded"
	CodeInsufficientSpace  Code = "insufficient_space"
	CodeTrackerUnavailable Code = "tracker_unavailable"
	CodeInvalid            Code = "invalid"
	CodeInternal           Code = "internal"
)

// Outcome represents the result of processing a message
type Outcome struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Name        string    `json:"name,omitempty"`
	Code        Code      `json:"code"`
	Message     string    `json:"message,omitempty"`
	ByteSize    int       `json:"byteSize,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}

// OK returns true if message was applied
func (o *Outcome) OK() bool {
	return o.Code == CodeOK
}

// NewOutcome creates an outcome for the supplied message
func NewOutcome(msg *Message, code Code, err error) *Outcome {
	ret := &Outcome{
		ID:          msg.ID,
		Action:      msg.Action,
		Name:        msg.Name,
		Code:        code,
		ProcessedAt: clock.Now(),
	}
	if err != nil {
		ret.Message = err.Error()
	}
	if code == CodeOK && msg.HasPayload() {
		ret.ByteSize = msg.ByteSize
	}
	return ret
}

// TrackerState represents tracker lifecycle as seen by the broker
type TrackerState string

const (
	TrackerStarting TrackerState = "starting"
	TrackerRunning  TrackerState = "running"
	TrackerStopped  TrackerState = "stopped"
	TrackerDegraded TrackerState = "degraded"
)

// AcceptsMessages returns true if publishing is permitted in this state
func (s TrackerState) AcceptsMessages() bool {
	return s == TrackerStarting || s == TrackerRunning
}
