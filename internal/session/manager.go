package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Handler processes one inbound JSON-RPC message for a session, calling
// emit zero or more times with outbound messages before returning.
// Non-streaming methods call emit exactly once; agents/execute-style
// streaming methods call it once per AgentChunk plus a terminal
// complete/error message. Implemented by pkg/mcp's dispatcher.
type Handler interface {
	Handle(ctx context.Context, sessionID string, msg json.RawMessage, emit func(json.RawMessage))
}

// ErrNoSession is the error value for an unknown session. No Manager method
// returns it: every method auto-creates the session it operates on, and
// CloseSession on an unknown id is a no-op.
var ErrNoSession = errors.New("session: no such session")

// Manager is the Session Manager (spec §4.H). Every method auto-creates
// the session it operates on if the id is unknown, per the auto-creation
// invariant: "clients with stale IDs after restart MUST NOT fail."
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	handler  Handler
	bufCap   int
}

// New builds a Manager dispatching through handler. bufCap is the
// per-session replay ring buffer size (0 uses defaultBufferSize).
func New(handler Handler, bufCap int) *Manager {
	return &Manager{sessions: map[string]*session{}, handler: handler, bufCap: bufCap}
}

// ensure returns the session for id, creating it if absent.
func (m *Manager) ensure(id string) *session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s
	}
	s = newSession(id, m.bufCap)
	m.sessions[id] = s
	return s
}

// CreateSession mints a new session ID and registers it.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	id := ulid.Make().String()
	m.ensure(id)
	return id, nil
}

// HasSession ensures id exists (auto-creating it) and always returns true,
// matching AutoCreateSessionManager::has_session's "ensured to exist"
// contract.
func (m *Manager) HasSession(ctx context.Context, id string) (bool, error) {
	m.ensure(id)
	return true, nil
}

// InitializeSession auto-creates id, runs msg through the handler
// synchronously, and returns its first emitted response.
func (m *Manager) InitializeSession(ctx context.Context, id string, msg json.RawMessage) (json.RawMessage, error) {
	m.ensure(id)

	var resp json.RawMessage
	var got bool
	m.handler.Handle(ctx, id, msg, func(out json.RawMessage) {
		if !got {
			resp = out
			got = true
		}
	})
	if !got {
		return nil, errors.New("session: initialize produced no response")
	}
	return resp, nil
}

// AcceptMessage auto-creates id and dispatches msg without waiting for (or
// returning) its response; every emitted message lands in the session's
// ring buffer and is fanned out to live subscribers.
func (m *Manager) AcceptMessage(ctx context.Context, id string, msg json.RawMessage) error {
	s := m.ensure(id)
	go m.handler.Handle(ctx, id, msg, func(out json.RawMessage) { s.emit(out) })
	return nil
}

// CreateStream auto-creates id, dispatches msg, and returns a channel of
// every message the handler emits for this one request (request-wise
// channel, per the Rust original's establish_request_wise_channel). The
// channel closes once the handler returns.
func (m *Manager) CreateStream(ctx context.Context, id string, msg json.RawMessage) (<-chan Event, error) {
	s := m.ensure(id)
	out := make(chan Event, defaultBufferSize)

	go func() {
		defer close(out)
		m.handler.Handle(ctx, id, msg, func(raw json.RawMessage) {
			ev := s.emit(raw)
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

// CreateStandaloneStream auto-creates id and returns a live subscription
// to every future event on the session (server-initiated notifications,
// per establish_common_channel), with no backlog replay.
func (m *Manager) CreateStandaloneStream(ctx context.Context, id string) (<-chan Event, error) {
	s := m.ensure(id)
	ch, unsub := s.subscribe(nil)
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return ch, nil
}

// Resume auto-creates id and returns a subscription that first replays
// every buffered event after lastEventID, then continues with live
// events. lastEventID of -1 replays the whole buffer while its first event
// is still buffered; once that event has been evicted, -1 is rejected with
// ErrInvalidEventID like any other ID older than the buffer.
func (m *Manager) Resume(ctx context.Context, id string, lastEventID EventID) (<-chan Event, error) {
	s := m.ensure(id)
	backlog, err := s.eventsSince(lastEventID)
	if err != nil {
		return nil, err
	}
	ch, unsub := s.subscribe(backlog)
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return ch, nil
}

// CloseSession removes and closes id's session, idempotently: closing an
// already-closed or never-created session is a no-op success.
func (m *Manager) CloseSession(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.markClosed()
	return nil
}
