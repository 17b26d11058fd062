// Package memory implements the Memory Store (spec §4.E): per-session
// conversation history with save/load/delete/list/add_message/get_or_create
// operations and pluggable pruning strategies.
package memory

import "context"

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a stored conversation: its message history plus the bookkeeping
// List needs (owning agent, recency for sort order).
type Session struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name,omitempty"`
	Messages  []Message `json:"messages"`
	UpdatedAt int64     `json:"updated_at"` // unix millis
}

// Summary is what List returns: enough to paginate without loading full
// histories.
type Summary struct {
	ID           string `json:"id"`
	AgentName    string `json:"agent_name,omitempty"`
	MessageCount int    `json:"message_count"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Store is the Memory Store's backend contract. Implementations: in-memory
// (process-local), file (one JSON document per session), and DB (goqu over
// the Persistence Core's sqlite database, whose migration creates the
// memory_sessions table).
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	AddMessage(ctx context.Context, sessionID string, msg Message) error
	Delete(ctx context.Context, sessionID string) error
	// List returns session summaries sorted by UpdatedAt descending,
	// optionally filtered to one agent, paginated by limit/offset. A zero
	// limit means unbounded.
	List(ctx context.Context, agentName string, limit, offset int) ([]Summary, error)
	// GetOrCreate returns the session, creating an empty one (owned by
	// agentName) if sessionID has never been seen (spec §4.E/§4.H's
	// auto-create invariant).
	GetOrCreate(ctx context.Context, sessionID, agentName string) (*Session, error)
}
