package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// echoHandler emits one JSON-RPC-shaped response echoing the inbound
// message, simulating a synchronous (non-streaming) dispatch.
type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, sessionID string, msg json.RawMessage, emit func(json.RawMessage)) {
	emit(msg)
}

// countingStreamHandler emits n messages per call, simulating a streaming
// method like agents/execute.
type countingStreamHandler struct {
	n int
}

func (h countingStreamHandler) Handle(ctx context.Context, sessionID string, msg json.RawMessage, emit func(json.RawMessage)) {
	for i := 0; i < h.n; i++ {
		emit(json.RawMessage(`{"chunk":` + string(rune('0'+i)) + `}`))
	}
}

func TestHasSessionAutoCreates(t *testing.T) {
	m := New(echoHandler{}, 0)
	ok, err := m.HasSession(context.Background(), "unknown-id")
	if err != nil || !ok {
		t.Fatalf("expected auto-created session to report true, got ok=%v err=%v", ok, err)
	}
}

func TestInitializeSessionReturnsFirstResponse(t *testing.T) {
	m := New(echoHandler{}, 0)
	resp, err := m.InitializeSession(context.Background(), "s1", json.RawMessage(`{"method":"initialize"}`))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if string(resp) != `{"method":"initialize"}` {
		t.Fatalf("unexpected response: %s", resp)
	}
}

func TestCreateStreamEmitsAllMessages(t *testing.T) {
	m := New(countingStreamHandler{n: 3}, 0)
	ch, err := m.CreateStream(context.Background(), "s2", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	var count int
	for range ch {
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 events, got %d", count)
	}
}

func TestResumeReplaysBufferedEvents(t *testing.T) {
	m := New(countingStreamHandler{n: 3}, 0)
	ctx := context.Background()

	if err := m.AcceptMessage(ctx, "s3", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Give the async dispatch a moment to land in the ring buffer.
	time.Sleep(20 * time.Millisecond)

	resumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := m.Resume(resumeCtx, "s3", -1)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	var got []Event
	timeout := time.After(200 * time.Millisecond)
	for len(got) < 3 {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for replayed events, got %d", len(got))
		}
	}
	if got[0].ID != 0 || got[1].ID != 1 || got[2].ID != 2 {
		t.Fatalf("expected ids 0,1,2 in order, got %#v", got)
	}
}

func TestResumeInvalidEventID(t *testing.T) {
	s := newSession("s4", 1)
	s.emit(json.RawMessage(`{"a":1}`)) // id 0, evicted below
	s.emit(json.RawMessage(`{"a":2}`)) // id 1, evicted below
	s.emit(json.RawMessage(`{"a":3}`)) // id 2, the only one left (1-slot buffer)

	if _, err := s.eventsSince(0); err == nil {
		t.Fatalf("expected ErrInvalidEventID: event 1 needed for replay was evicted")
	}
	events, err := s.eventsSince(1)
	if err != nil {
		t.Fatalf("eventsSince(1): %v", err)
	}
	if len(events) != 1 || events[0].ID != 2 {
		t.Fatalf("expected only event 2 remaining, got %#v", events)
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	m := New(echoHandler{}, 0)
	ctx := context.Background()
	m.ensure("s5")

	if err := m.CloseSession(ctx, "s5"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.CloseSession(ctx, "s5"); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
	if err := m.CloseSession(ctx, "never-existed"); err != nil {
		t.Fatalf("closing an unknown session should be a no-op, got: %v", err)
	}
}
