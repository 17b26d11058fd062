package llm

import "encoding/json"

// pendingCall tracks one tool call's streamed id/name/arguments fragments.
type pendingCall struct {
	id      string
	name    string
	argsBuf string
}

// ToolCallAccumulator merges per-index ToolCall deltas across a stream of
// StreamChunks into complete calls, per spec §4.D's invariant: id and name
// arrive at most once each (first non-empty value wins) and arguments are
// appended in order, since providers split a single tool call's JSON
// arguments across many chunks.
type ToolCallAccumulator struct {
	order []int
	calls map[int]*pendingCall
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: map[int]*pendingCall{}}
}

// Add merges one index-positioned delta into the accumulator.
func (a *ToolCallAccumulator) Add(index int, id, name, argsFragment string) {
	c, ok := a.calls[index]
	if !ok {
		c = &pendingCall{}
		a.calls[index] = c
		a.order = append(a.order, index)
	}
	if c.id == "" && id != "" {
		c.id = id
	}
	if c.name == "" && name != "" {
		c.name = name
	}
	c.argsBuf += argsFragment
}

// Finalize parses each accumulated call's argument buffer as JSON and
// returns the completed ToolCalls in first-seen index order. A call whose
// buffer never becomes valid JSON is returned with nil Arguments rather
// than dropped, so the caller can still report the tool name.
func (a *ToolCallAccumulator) Finalize() []ToolCall {
	out := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		c := a.calls[idx]
		var args map[string]any
		if c.argsBuf != "" {
			_ = json.Unmarshal([]byte(c.argsBuf), &args)
		}
		out = append(out, ToolCall{ID: c.id, Name: c.name, Arguments: args})
	}
	return out
}
