package progress

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the broker when a
// message is published or an outcome is reported. Fields are signed.
type Delta struct {
	Published    int
	Processed    int
	Puts         int
	Replaces     int
	Removes      int
	Failed       int
	BytesWritten int64
}

// Snapshot is a read-only copy of the counters.
type Snapshot struct {
	StartedAt    time.Time `json:"startedAt"`
	Published    int       `json:"published"`
	Processed    int       `json:"processed"`
	Puts         int       `json:"puts"`
	Replaces     int       `json:"replaces"`
	Removes      int       `json:"removes"`
	Failed       int       `json:"failed"`
	BytesWritten int64     `json:"bytesWritten"`
}

// Pending returns published messages not yet processed.
func (s Snapshot) Pending() int {
	if s.Processed > s.Published {
		return 0
	}
	return s.Published - s.Processed
}

// Progress keeps cache message counters. It is safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	counters Snapshot
	onChange func(Snapshot)
}

// New creates a Progress started now.
func New() *Progress {
	return &Progress{counters: Snapshot{StartedAt: time.Now()}}
}

// Update applies the supplied delta. If an onChange callback has been
// registered it is invoked with a copy of the counters outside the critical
// section so that the callback can perform slow operations.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.mu.Lock()
	p.counters.Published += d.Published
	p.counters.Processed += d.Processed
	p.counters.Puts += d.Puts
	p.counters.Replaces += d.Replaces
	p.counters.Removes += d.Removes
	p.counters.Failed += d.Failed
	p.counters.BytesWritten += d.BytesWritten

	snapshot := p.counters
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters suitable for read-only inspection.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// OnChange registers a callback that is invoked after every Update. Passing
// nil disables the callback. Only one callback can be active.
func (p *Progress) OnChange(cb func(Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}
