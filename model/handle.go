package model

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// HandleEnv is the environment variable carrying an encoded Handle to worker processes
const HandleEnv = "SHMCACHE_HANDLE"

// Handle carries everything a process needs to attach to a running cache
type Handle struct {
	InstanceID      string `json:"instanceId"`
	Address         string `json:"address"`
	Token           string `json:"token"`
	SegmentDir      string `json:"segmentDir"`
	SegmentPrefix   string `json:"segmentPrefix"`
	MaxBytes        int64  `json:"maxBytes,omitempty"`
	QueueCapacity   int    `json:"queueCapacity"`
	MaxMessageBytes int    `json:"maxMessageBytes"`
	Profiling       bool   `json:"profiling,omitempty"`

	// ConfirmTimeout bounds confirmed calls of attached workers
	ConfirmTimeout time.Duration `json:"confirmTimeout,omitempty"`
}

// Target returns the gRPC dial target of the broker socket
func (h *Handle) Target() string {
	return "unix://" + h.Address
}

// Validate checks that the handle can be used to attach
func (h *Handle) Validate() error {
	if h == nil {
		return fmt.Errorf("handle was nil")
	}
	if h.Address == "" {
		return fmt.Errorf("handle address was empty")
	}
	if h.Token == "" {
		return fmt.Errorf("handle token was empty")
	}
	if h.SegmentDir == "" {
		return fmt.Errorf("handle segment dir was empty")
	}
	return nil
}

// Encode returns handle as base64 encoded JSON
func (h *Handle) Encode() (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode handle: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeHandle decodes a handle produced by Encode
func DecodeHandle(encoded string) (*Handle, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode handle: %w", err)
	}
	ret := &Handle{}
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handle: %w", err)
	}
	return ret, ret.Validate()
}
