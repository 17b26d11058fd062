package session

import (
	"fmt"
	"net/http"
	"strconv"
)

// WriteSSE writes one Event as a named "message" server-sent event, the
// same id/data/flush shape as internal/server/gateway.go's writeSSEChunk,
// generalized to also carry the event's monotonic id (so clients can
// resume from it via Last-Event-ID).
func WriteSSE(w http.ResponseWriter, flusher http.Flusher, ev Event) {
	fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", strconv.FormatInt(int64(ev.ID), 10), ev.Message)
	flusher.Flush()
}

// WriteSSEComplete terminates a stream with a "complete" event, spec
// §4.I: "the final event is event: complete or event: error."
func WriteSSEComplete(w http.ResponseWriter, flusher http.Flusher, data []byte) {
	fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
	flusher.Flush()
}

// WriteSSEStreamError terminates a stream with an "error" event.
func WriteSSEStreamError(w http.ResponseWriter, flusher http.Flusher, data []byte) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	flusher.Flush()
}

// SetSSEHeaders sets the response headers for an SSE stream, matching
// gateway.go's handleStreamingChat header set.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
