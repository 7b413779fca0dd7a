package server

import (
	"sync"

	"styleforge/internal/forge"
)

// entry tracks one controller from start through completion. The progress
// stream is single-reader; claimed marks it taken so a second subscriber
// gets rejected instead of silently splitting events.
type entry struct {
	ctrl *forge.Controller
	done chan struct{}

	mu      sync.Mutex
	claimed bool
	result  *forge.Result
	err     error
}

func (e *entry) claimStream() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed {
		return false
	}
	e.claimed = true
	return true
}

func (e *entry) finish(res *forge.Result, err error) {
	e.mu.Lock()
	e.result = res
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

func (e *entry) snapshot() *forge.Result {
	e.mu.Lock()
	res := e.result
	e.mu.Unlock()
	if res != nil {
		return res
	}
	return e.ctrl.Snapshot()
}

func (e *entry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// registry is the server's view of in-process sessions. Terminal sessions
// stay registered so their snapshots remain reachable without a disk read;
// restarts fall back to the session store.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) add(ctrl *forge.Controller) *entry {
	e := &entry{ctrl: ctrl, done: make(chan struct{})}
	r.mu.Lock()
	r.entries[ctrl.SessionID()] = e
	r.mu.Unlock()
	return e
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	return e, ok
}

func (r *registry) live() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entry
	for _, e := range r.entries {
		if !e.finished() {
			out = append(out, e)
		}
	}
	return out
}
