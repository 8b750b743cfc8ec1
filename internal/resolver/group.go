package resolver

import (
	"context"
	"sync"
	"time"
)

type groupState int

const (
	stateOpen groupState = iota
	stateFetching
	stateClosed
)

func (s groupState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateFetching:
		return "fetching"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// group coalesces callers for one location into a single aggregated fetch.
// It moves OPEN -> FETCHING -> CLOSED exactly once and is never reused.
// done is closed after the result is set, which makes the result a
// write-once value visible to every waiter.
type group struct {
	location string
	created  time.Time
	done     chan struct{}

	mu      sync.Mutex
	state   groupState
	pending int
	temp    float64
	ok      bool
}

func newGroup(location string, now time.Time) *group {
	return &group{location: location, created: now, done: make(chan struct{})}
}

// join registers a caller. It fails once the group has left OPEN; such a
// caller belongs to a later group.
func (g *group) join() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateOpen {
		return false
	}
	g.pending++
	return true
}

// beginFetch closes the group to new callers and reports how many joined.
func (g *group) beginFetch() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = stateFetching
	return g.pending
}

// settle records the result and marks the group CLOSED. The caller must
// broadcast afterwards.
func (g *group) settle(temp float64, ok bool) {
	g.mu.Lock()
	g.temp, g.ok = temp, ok
	g.state = stateClosed
	g.mu.Unlock()
}

func (g *group) broadcast() { close(g.done) }

// wait blocks until the result is broadcast or ctx ends. A cancelled caller
// gets no value; the group itself carries on.
func (g *group) wait(ctx context.Context) (float64, bool) {
	select {
	case <-g.done:
		return g.result()
	case <-ctx.Done():
		return 0, false
	}
}

// closed blocks until the group has been evicted and broadcast.
func (g *group) closed(ctx context.Context) bool {
	select {
	case <-g.done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *group) result() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.temp, g.ok
}

func (g *group) currentState() groupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
