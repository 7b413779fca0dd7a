package forge

import (
	"sync"
	"time"
)

// EventType identifies one kind of progress event.
type EventType string

const (
	EventSessionStarted     EventType = "session-started"
	EventStatusChanged      EventType = "status-changed"
	EventReferenceReady     EventType = "reference-features-ready"
	EventIterationStarted   EventType = "iteration-started"
	EventCandidateReady     EventType = "candidate-image-ready"
	EventIterationEvaluated EventType = "iteration-evaluated"
	EventIterationFailed    EventType = "iteration-failed"
	EventSessionComplete    EventType = "session-complete"
	EventSessionError       EventType = "session-error"
)

// Event is one entry in a session's progress stream. Seq increases by one
// per event within a session, so a consumer can assert ordering and detect
// anything it missed.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Iteration int       `json:"iteration,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// defaultProgressBuffer is the floor for a session's stream buffer.
// NewController sizes the buffer from the iteration budget so a full run
// fits even when the reader attaches late; this constant only covers the
// caller who builds a channel directly with a non-positive size.
const defaultProgressBuffer = 64

// BufferFor sizes a stream so every event of a run with the given iteration
// budget fits: a handful of session-level events plus at most four per
// iteration. A reader can then attach after completion and replay everything.
func BufferFor(maxIterations int) int {
	n := 8 + 4*maxIterations
	if n < defaultProgressBuffer {
		n = defaultProgressBuffer
	}
	return n
}

// ProgressChannel is the append-only event stream between one controller
// and one reader.
//
// The controller is the only writer; Emit and Close must only be called from
// the controller goroutine. The reader consumes Events() and may call
// Disconnect at any time, after which every further Emit becomes a no-op and
// the controller winds the session down at its next cancellation checkpoint.
type ProgressChannel struct {
	mu           sync.Mutex
	events       chan Event
	done         chan struct{} // closed by Disconnect
	seq          uint64
	disconnected bool
	sealed       bool // Close called, events channel closed
}

// NewProgressChannel creates a progress stream with the given buffer size.
// A non-positive buffer selects the default.
func NewProgressChannel(buffer int) *ProgressChannel {
	if buffer <= 0 {
		buffer = defaultProgressBuffer
	}
	return &ProgressChannel{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events returns the receive side of the stream. The channel is closed after
// the terminal event once the session finishes, so reading with range
// terminates cleanly.
func (p *ProgressChannel) Events() <-chan Event {
	return p.events
}

// Emit appends one event to the stream. It reports false when the event was
// dropped because the reader has disconnected or the stream is closed.
// Events are stamped with a per-session sequence number and the emit time.
func (p *ProgressChannel) Emit(ev Event) bool {
	p.mu.Lock()
	if p.disconnected || p.sealed {
		p.mu.Unlock()
		return false
	}
	p.seq++
	ev.Seq = p.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	p.mu.Unlock()

	// Emit must never block the controller. A full buffer means nobody is
	// draining a stream the session has outgrown, so treat the reader as
	// gone; the controller winds down at its next checkpoint.
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	default:
		p.Disconnect()
		return false
	}
}

// Disconnect tells the writer the reader is gone. Safe to call from any
// goroutine, any number of times. Buffered events stay readable.
func (p *ProgressChannel) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnected {
		return
	}
	p.disconnected = true
	close(p.done)
}

// Disconnected reports whether the reader has gone away. The controller
// checks this at iteration boundaries.
func (p *ProgressChannel) Disconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

// Close seals the stream after the terminal event. Only the writer may call
// it, exactly once.
func (p *ProgressChannel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return
	}
	p.sealed = true
	close(p.events)
}
