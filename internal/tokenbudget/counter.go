// Package tokenbudget implements the Token Counter / Budget component
// (spec §4.B): approximate token counting and atomic, lock-free budget
// consumption.
package tokenbudget

import (
	"hash/fnv"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Message is the minimal shape Counter needs to account for role/tool
// overhead; callers convert their own message types into it.
type Message struct {
	Role      string
	Content   string
	ToolName  string
	ToolArgs  string
	HasTool   bool
}

// Counter counts tokens in text, caching by content hash. When encoding
// is non-empty it uses a real tiktoken-go BPE encoding (accurate for
// OpenAI-style models); otherwise it falls back to a chars-per-token
// approximation, matching the ratio the system was distilled from.
type Counter struct {
	mu            sync.RWMutex
	cache         map[uint64]int
	enc           *tiktoken.Tiktoken
	charsPerToken float32
}

// NewApprox creates a Counter using the chars/token approximation only.
func NewApprox() *Counter {
	return &Counter{cache: make(map[uint64]int), charsPerToken: 4.0}
}

// NewForModel creates a Counter backed by tiktoken-go's encoding for the
// given model name, falling back to the approximation if the model is
// unrecognized.
func NewForModel(model string) *Counter {
	c := NewApprox()
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		c.enc = enc
	}
	return c
}

// Count returns the (approximate or exact) token count of text.
func (c *Counter) Count(text string) int {
	h := hashText(text)

	c.mu.RLock()
	if n, ok := c.cache[h]; ok {
		c.mu.RUnlock()
		return n
	}
	c.mu.RUnlock()

	var n int
	if c.enc != nil {
		n = len(c.enc.Encode(text, nil, nil))
	} else {
		n = int((float32(len(text)) / c.charsPerToken) + 0.999)
	}

	c.mu.Lock()
	c.cache[h] = n
	c.mu.Unlock()
	return n
}

// CountMessage counts tokens in one message including role/tool overhead.
func (c *Counter) CountMessage(m Message) int {
	n := c.Count(m.Content) + 4 // role/formatting overhead, OpenAI-typical
	if m.HasTool {
		n += c.Count(m.ToolName) + c.Count(m.ToolArgs) + 10
	}
	return n
}

// CountMessages sums CountMessage over a conversation plus a small
// per-conversation overhead.
func (c *Counter) CountMessages(msgs []Message) int {
	total := 3
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}

// ClearCache drops all cached counts.
func (c *Counter) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[uint64]int)
	c.mu.Unlock()
}

func hashText(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
