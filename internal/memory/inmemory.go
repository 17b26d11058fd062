package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory is a process-local Store; data does not survive a restart.
// Map-with-mutex shape grounded on internal/store/memory/memory.go.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemory creates an empty in-memory Store.
func NewInMemory() *InMemory {
	return &InMemory{sessions: map[string]*Session{}}
}

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

func (m *InMemory) Load(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSession(m.sessions[sessionID]), nil
}

func (m *InMemory) Save(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneSession(session)
	cp.UpdatedAt = time.Now().UnixMilli()
	m.sessions[session.ID] = cp
	return nil
}

func (m *InMemory) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{ID: sessionID}
		m.sessions[sessionID] = s
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UnixMilli()
	return nil
}

func (m *InMemory) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *InMemory) List(ctx context.Context, agentName string, limit, offset int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var summaries []Summary
	for _, s := range m.sessions {
		if agentName != "" && s.AgentName != agentName {
			continue
		}
		summaries = append(summaries, Summary{
			ID:           s.ID,
			AgentName:    s.AgentName,
			MessageCount: len(s.Messages),
			UpdatedAt:    s.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt != summaries[j].UpdatedAt {
			return summaries[i].UpdatedAt > summaries[j].UpdatedAt
		}
		return summaries[i].ID < summaries[j].ID
	})
	return paginate(summaries, limit, offset), nil
}

func (m *InMemory) GetOrCreate(ctx context.Context, sessionID, agentName string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{ID: sessionID, AgentName: agentName, UpdatedAt: time.Now().UnixMilli()}
		m.sessions[sessionID] = s
	}
	return cloneSession(s), nil
}

// paginate applies limit/offset to a slice already in final sort order. A
// zero limit means unbounded.
func paginate(summaries []Summary, limit, offset int) []Summary {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(summaries) {
		return []Summary{}
	}
	summaries = summaries[offset:]
	if limit > 0 && limit < len(summaries) {
		summaries = summaries[:limit]
	}
	return summaries
}
