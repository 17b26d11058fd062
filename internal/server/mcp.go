package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/periplon/metis/internal/session"
)

// sessionIDHeader is the header carrying the session id in both
// directions, per spec §6: "Mcp-Session-Id header carries the session ID
// in both directions."
const sessionIDHeader = "Mcp-Session-Id"

// wantsStream reports whether the client asked for an SSE upgrade, either
// explicitly via Accept or implicitly by POSTing a streaming method.
func wantsStream(r *http.Request, method string) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return method == "agents/execute"
}

// MCPEndpoint handles POST /mcp, the JSON-RPC wire transport of spec §6.
// Non-streaming methods get a single synchronous JSON-RPC response body.
// Streaming methods (or any request with an SSE Accept header) upgrade
// the response to text/event-stream, relaying every event the Session
// Manager emits for this one request.
func (s *Server) MCPEndpoint(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		httpResponse(w, "mcp is not configured on this server", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpResponse(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var probe struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(body, &probe)

	w.Header().Set(sessionIDHeader, sessionID)

	if !wantsStream(r, probe.Method) {
		resp, err := s.sessions.InitializeSession(r.Context(), sessionID, body)
		if err != nil {
			httpResponse(w, err.Error(), http.StatusInternalServerError)
			return
		}
		httpResponseJSONByte(w, resp, http.StatusOK)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpResponse(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := s.sessions.CreateStream(r.Context(), sessionID, body)
	if err != nil {
		httpResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	session.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last json.RawMessage
	for ev := range events {
		last = ev.Message
		session.WriteSSE(w, flusher, ev)
	}
	session.WriteSSEComplete(w, flusher, last)
}

// MCPResumeEndpoint handles GET /mcp, resuming a session's SSE stream from
// Last-Event-ID (spec §4.H's resume(id, last_event_id)), or, absent that
// header, opening a standalone live subscription for server-initiated
// notifications.
func (s *Server) MCPResumeEndpoint(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		httpResponse(w, "mcp is not configured on this server", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		httpResponse(w, "Mcp-Session-Id header is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpResponse(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var events <-chan session.Event
	var err error
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		n, parseErr := strconv.ParseInt(last, 10, 64)
		if parseErr != nil {
			httpResponse(w, "invalid Last-Event-ID", http.StatusBadRequest)
			return
		}
		events, err = s.sessions.Resume(r.Context(), sessionID, session.EventID(n))
	} else {
		events, err = s.sessions.CreateStandaloneStream(r.Context(), sessionID)
	}
	if err != nil {
		httpResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	session.SetSSEHeaders(w)
	w.Header().Set(sessionIDHeader, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		session.WriteSSE(w, flusher, ev)
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}
