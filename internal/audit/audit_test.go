package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type tallySink struct {
	n atomic.Int64
}

func (s *tallySink) Emit(context.Context, Event) { s.n.Add(1) }

func (s *tallySink) total() int64 { return s.n.Load() }

// blockingSink parks every Emit until released, simulating a slow
// downstream consumer.
type blockingSink struct {
	gate chan struct{}
}

func newBlockingSink() *blockingSink { return &blockingSink{gate: make(chan struct{})} }

func (s *blockingSink) Emit(context.Context, Event) { <-s.gate }

func (s *blockingSink) releaseOne() { s.gate <- struct{}{} }

func (s *blockingSink) releaseAll() { close(s.gate) }

func TestNewDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{}, &tallySink{})
	if d != nil {
		t.Fatal("disabled config must yield a nil dispatcher")
	}

	// Nil dispatchers are inert, not a crash.
	d.Emit(context.Background(), Event{EventType: "noop"})
	d.Close()
	if n := d.Dropped(); n != 0 {
		t.Fatalf("nil dispatcher reported %d drops", n)
	}
}

func TestEmitDropsWhenBufferFull(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		sink.releaseAll()
		d.Close()
	}()

	// The first event occupies the worker, the second fills the buffer,
	// so further emits must drop rather than block.
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("emit into a full buffer never registered as dropped")
		}
		d.Emit(context.Background(), Event{EventType: "c"})
	}
}

func TestEmitBlocksUntilWorkerCatchesUp(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		sink.releaseAll()
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	unblocked := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "c"})
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("emit returned while the buffer was still full")
	case <-time.After(100 * time.Millisecond):
	}

	sink.releaseOne()

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("emit stayed blocked after buffer space opened up")
	}
}

func TestEmitReturnsOnContextCancel(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		sink.releaseAll()
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: "c"})
		close(returned)
	}()
	cancel()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled emit did not return")
	}
}

func TestCloseFlushesBufferedEvents(t *testing.T) {
	sink := &tallySink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)

	const sent = 10
	for range sent {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	d.Close()

	if got := sink.total(); got != sent {
		t.Fatalf("sink saw %d events after Close, want %d", got, sent)
	}
}

func TestCloseTwiceAndEmitAfterClose(t *testing.T) {
	sink := &tallySink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "b"})

	if got := sink.total(); got != 1 {
		t.Fatalf("sink saw %d events, want only the pre-Close event", got)
	}
}

func TestChannelSinkBuffersAndHonorsContext(t *testing.T) {
	sink := NewChannelSink(1)

	sink.Emit(context.Background(), Event{EventType: "first"})
	select {
	case got := <-sink.Events():
		if got.EventType != "first" {
			t.Fatalf("EventType = %q, want first", got.EventType)
		}
	default:
		t.Fatal("event was not buffered")
	}

	// Fill the buffer, then emit with a cancelled context: must not hang.
	sink.Emit(context.Background(), Event{EventType: "second"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, Event{EventType: "third"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit into a full channel ignored context cancellation")
	}
}

func TestChannelSinkClampsBuffer(t *testing.T) {
	sink := NewChannelSink(0)
	if got := cap(sink.Events()); got != 1 {
		t.Fatalf("cap = %d, want 1", got)
	}
}

func TestJSONWriterSinkEncodesEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		EventType: "login_success",
		UserID:    "u1",
		Namespace: "public",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "authentication_failed"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d:\n%s", len(lines), buf.String())
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if first.EventType != "login_success" || first.UserID != "u1" || !first.Success {
		t.Fatalf("unexpected first event: %+v", first)
	}

	var second Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("second line is not valid JSON: %v", err)
	}
	if second.Error != "authentication_failed" {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestJSONWriterSinkToleratesNilWriter(t *testing.T) {
	NewJSONWriterSink(nil).Emit(context.Background(), Event{EventType: "x"})

	var nilSink *JSONWriterSink
	nilSink.Emit(context.Background(), Event{EventType: "x"})
}
