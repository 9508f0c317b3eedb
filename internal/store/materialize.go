package store

import (
	"context"
	"sync"
)

// latch is a one-shot future for a session materialization attempt. It
// resolves with the server-assigned session id, or with the creation error.
type latch struct {
	done chan struct{}
	id   string
	err  error
}

// await blocks until the latch resolves or ctx is done.
func (l *latch) await(ctx context.Context) (string, error) {
	select {
	case <-l.done:
		return l.id, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// materializer holds the single outstanding materialization slot. Only one
// session is ever active for typing, so one slot suffices; relaxing that
// constraint means keying slots by session id.
type materializer struct {
	mu       sync.Mutex
	inflight *latch
}

// begin registers a new attempt. ok is false when one is already in flight.
func (m *materializer) begin() (l *latch, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight != nil {
		return m.inflight, false
	}
	m.inflight = &latch{done: make(chan struct{})}
	return m.inflight, true
}

// current returns the in-flight latch, or nil.
func (m *materializer) current() *latch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}

// finish resolves l and clears the slot so a later first-message can start
// its own cycle.
func (m *materializer) finish(l *latch, id string, err error) {
	m.mu.Lock()
	if m.inflight == l {
		m.inflight = nil
	}
	m.mu.Unlock()
	l.id, l.err = id, err
	close(l.done)
}
