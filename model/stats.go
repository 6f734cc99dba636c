package model

import (
	"time"

	"github.com/viant/shmcache/progress"
)

// SegmentOp represents an allocator journal operation
type SegmentOp string

const (
	SegmentCreate  SegmentOp = "create"
	SegmentDestroy SegmentOp = "destroy"
)

// Record represents a single allocator journal record
type Record struct {
	Seq     uint64    `json:"seq"`
	Op      SegmentOp `json:"op"`
	Segment string    `json:"segment"`
	Bytes   int       `json:"bytes"`
	At      time.Time `json:"at"`
}

// Stats represents a point in time view of a running cache
type Stats struct {
	InstanceID    string            `json:"instanceId"`
	Entries       int               `json:"entries"`
	Segments      int               `json:"segments"`
	Bytes         int64             `json:"bytes"`
	MaxBytes      int64             `json:"maxBytes"`
	QueueDepth    int               `json:"queueDepth"`
	QueueCapacity int               `json:"queueCapacity"`
	Inflight      int               `json:"inflight"`
	DeadLetters   int               `json:"deadLetters"`
	TrackerState  TrackerState      `json:"trackerState"`
	Counters      progress.Snapshot `json:"counters"`
	Journal       []*Record         `json:"journal,omitempty"`
	Rejected      []*DeadLetter     `json:"rejected,omitempty"`
}

// DeadLetter represents a failed message retained for diagnostics, without its payload
type DeadLetter struct {
	Message *Message `json:"message"`
	Error   string   `json:"error,omitempty"`
}
