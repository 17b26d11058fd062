package memory

// Strategy enumerates the Memory Store's history-pruning modes (spec
// §4.E), grounded on original_source/src/agents/memory/strategy.rs'
// apply_strategy dispatch.
type Strategy struct {
	Kind string `json:"kind"` // "full" | "sliding_window" | "first_last"
	N    int    `json:"n,omitempty"` // sliding_window's window size
	F    int    `json:"f,omitempty"` // first_last's leading count
	L    int    `json:"l,omitempty"` // first_last's trailing count
}

// Apply prunes messages per the strategy, per strategy.rs's exact
// semantics (confirmed against its test fixtures).
func Apply(messages []Message, s Strategy) []Message {
	switch s.Kind {
	case "sliding_window":
		return slidingWindow(messages, s.N)
	case "first_last":
		return firstLast(messages, s.F, s.L)
	default: // "full"
		return messages
	}
}

// slidingWindow keeps a leading system message (if present) plus the last
// n non-system messages, mirroring strategy.rs's apply_sliding_window, with
// one addition: if the window would start on a tool message, it extends back
// by one to keep that tool result paired with the assistant call that issued it.
func slidingWindow(messages []Message, n int) []Message {
	if n < 0 {
		n = 0
	}
	if len(messages) <= n {
		return messages
	}

	var lead []Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == "system" {
		lead = messages[:1]
		rest = messages[1:]
	}

	if len(rest) <= n {
		return append(append([]Message{}, lead...), rest...)
	}

	takeFrom := len(rest) - n
	// If the window's leading edge splits a tool call from the assistant
	// message that issued it, extend the window back by one to keep the
	// pair together.
	if takeFrom < len(rest) && rest[takeFrom].Role == "tool" && takeFrom > 0 && rest[takeFrom-1].Role == "assistant" {
		takeFrom--
	}

	return append(append([]Message{}, lead...), rest[takeFrom:]...)
}

// firstLast keeps the first f and last l messages, mirroring strategy.rs's
// apply_first_last. Overlapping windows (f+l >= len) degrade to the full
// history rather than duplicating messages.
func firstLast(messages []Message, f, l int) []Message {
	if f < 0 {
		f = 0
	}
	if l < 0 {
		l = 0
	}
	if f+l >= len(messages) {
		return messages
	}

	out := make([]Message, 0, f+l)
	out = append(out, messages[:f]...)
	out = append(out, messages[len(messages)-l:]...)
	return out
}
