// Package ack pairs confirming publishers with the outcome the tracker
// reports for their message.
package ack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/shmcache/model"
)

// ErrNotExpected is returned when waiting on an id that was never expected
var ErrNotExpected = errors.New("ack: outcome not expected")

type waiter struct {
	ch      chan *model.Outcome
	created time.Time
}

// Board represents a rendez-vous between publishers and tracker outcomes.
// Expect must be called before the message is published.
type Board struct {
	mu      sync.Mutex
	waiters map[string]*waiter
	aborted *model.Outcome
}

// Expect registers interest in the outcome of message id
func (b *Board) Expect(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.waiters[id]; ok {
		return
	}
	w := &waiter{ch: make(chan *model.Outcome, 1), created: time.Now()}
	if b.aborted != nil {
		w.ch <- b.abortOutcome(id)
	}
	b.waiters[id] = w
}

// Post delivers outcome to its waiter; it returns false when nobody expects it
func (b *Board) Post(outcome *model.Outcome) bool {
	if outcome == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.waiters[outcome.ID]
	if !ok {
		return false
	}
	select {
	case w.ch <- outcome:
		return true
	default:
		return false
	}
}

// Wait blocks until the outcome for id is posted or ctx is done
func (b *Board) Wait(ctx context.Context, id string) (*model.Outcome, error) {
	b.mu.Lock()
	w, ok := b.waiters[id]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExpected, id)
	}
	defer b.Cancel(id)
	select {
	case outcome := <-w.ch:
		return outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel drops interest in id
func (b *Board) Cancel(id string) {
	b.mu.Lock()
	delete(b.waiters, id)
	b.mu.Unlock()
}

// Abort fails every pending and future wait with code
func (b *Board) Abort(code model.Code, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = &model.Outcome{Code: code, Message: reason}
	for id, w := range b.waiters {
		select {
		case w.ch <- b.abortOutcome(id):
		default:
		}
	}
}

// Pending returns number of registered waiters
func (b *Board) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// Expire drops waiters registered before deadline and returns how many were dropped
func (b *Board) Expire(deadline time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for id, w := range b.waiters {
		if w.created.Before(deadline) {
			delete(b.waiters, id)
			count++
		}
	}
	return count
}

func (b *Board) abortOutcome(id string) *model.Outcome {
	return &model.Outcome{ID: id, Code: b.aborted.Code, Message: b.aborted.Message, ProcessedAt: time.Now()}
}

// New creates a board
func New() *Board {
	return &Board{waiters: make(map[string]*waiter)}
}
