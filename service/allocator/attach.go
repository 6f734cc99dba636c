package allocator

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Attachment represents a process local mapping of a segment. It does not
// own the segment; closing it only unmaps the view.
type Attachment struct {
	ID   string
	mu   sync.Mutex
	data []byte
}

// Attach maps segment id located in dir read/write
func Attach(dir, id string) (*Attachment, error) {
	if !IsValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	data, err := mapSegment(filepath.Join(dir, id))
	if err != nil {
		return nil, err
	}
	return &Attachment{ID: id, data: data}, nil
}

// Bytes returns mapped memory, nil once closed
func (a *Attachment) Bytes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data
}

// Len returns mapped size
func (a *Attachment) Len() int {
	return len(a.Bytes())
}

// Closed returns true after Close
func (a *Attachment) Closed() bool {
	return a.Bytes() == nil
}

// Close unmaps the segment; calling it more than once is a no-op
func (a *Attachment) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.data == nil {
		return nil
	}
	data := a.data
	a.data = nil
	return unmapSegment(data)
}
