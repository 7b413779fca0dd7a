package forge

import (
	"testing"
	"time"
)

func TestProgressChannelOrderingAndSeq(t *testing.T) {
	p := NewProgressChannel(8)
	kinds := []EventType{EventSessionStarted, EventIterationStarted, EventCandidateReady, EventSessionComplete}
	for _, k := range kinds {
		if !p.Emit(Event{Type: k}) {
			t.Fatalf("emit %s rejected", k)
		}
	}
	p.Close()

	var got []Event
	for ev := range p.Events() {
		got = append(got, ev)
	}
	if len(got) != len(kinds) {
		t.Fatalf("read %d events, want %d", len(got), len(kinds))
	}
	for i, ev := range got {
		if ev.Type != kinds[i] {
			t.Errorf("event %d is %s, want %s", i, ev.Type, kinds[i])
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("event %d missing timestamp", i)
		}
	}
}

func TestProgressChannelEmitAfterDisconnectIsNoop(t *testing.T) {
	p := NewProgressChannel(4)
	if !p.Emit(Event{Type: EventSessionStarted}) {
		t.Fatal("emit before disconnect rejected")
	}
	p.Disconnect()
	if p.Emit(Event{Type: EventIterationStarted}) {
		t.Error("emit after disconnect succeeded, want no-op")
	}
	if !p.Disconnected() {
		t.Error("Disconnected() = false after Disconnect")
	}
	// Buffered events stay readable.
	p.Close()
	n := 0
	for range p.Events() {
		n++
	}
	if n != 1 {
		t.Errorf("read %d buffered events, want 1", n)
	}
}

func TestProgressChannelDisconnectIdempotent(t *testing.T) {
	p := NewProgressChannel(1)
	p.Disconnect()
	p.Disconnect() // must not panic closing done twice
}

func TestProgressChannelCloseIdempotent(t *testing.T) {
	p := NewProgressChannel(1)
	p.Close()
	p.Close() // must not panic closing events twice
	if p.Emit(Event{Type: EventSessionComplete}) {
		t.Error("emit after close succeeded")
	}
}

// A full buffer with a vanished reader must never block the writer: the
// emit is dropped and the stream treated as disconnected.
func TestProgressChannelFullBufferNeverBlocks(t *testing.T) {
	p := NewProgressChannel(1)
	if !p.Emit(Event{Type: EventSessionStarted}) { // fills the buffer
		t.Fatal("emit into empty buffer rejected")
	}

	done := make(chan bool, 1)
	go func() {
		done <- p.Emit(Event{Type: EventIterationStarted})
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("emit reported success with a full buffer and no reader")
		}
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full buffer")
	}
	if !p.Disconnected() {
		t.Error("full buffer did not mark the stream disconnected")
	}

	// The buffered event stays readable.
	p.Close()
	n := 0
	for range p.Events() {
		n++
	}
	if n != 1 {
		t.Errorf("read %d buffered events, want 1", n)
	}
}

func TestProgressChannelDefaultBuffer(t *testing.T) {
	p := NewProgressChannel(0)
	if cap(p.events) != defaultProgressBuffer {
		t.Errorf("default buffer = %d, want %d", cap(p.events), defaultProgressBuffer)
	}
}

func TestBufferForCoversIterationBudget(t *testing.T) {
	if got := BufferFor(5); got != defaultProgressBuffer {
		t.Errorf("BufferFor(5) = %d, want floor %d", got, defaultProgressBuffer)
	}
	// Each iteration emits at most four events; the buffer must hold a
	// full run plus the session-level events.
	if got := BufferFor(200); got < 8+4*200 {
		t.Errorf("BufferFor(200) = %d, too small for a full run", got)
	}
}
