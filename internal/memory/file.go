package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore persists each session as one JSON document under Dir. No pack
// dependency models single-document file persistence better than the
// standard library, so this is stdlib encoding/json + os, matching the
// granularity of original_source/src/config/file_storage.rs's file-backed
// data lake mode (one file per logical record).
type FileStore struct {
	mu  sync.Mutex
	Dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory store dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(sessionID string) string {
	return filepath.Join(f.Dir, sessionID+".json")
}

func (f *FileStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(sessionID)
}

func (f *FileStore) load(sessionID string) (*Session, error) {
	data, err := os.ReadFile(f.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (f *FileStore) Save(ctx context.Context, session *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.UpdatedAt = time.Now().UnixMilli()
	return f.save(session)
}

func (f *FileStore) save(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(s.ID), data, 0o644)
}

func (f *FileStore) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load(sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		s = &Session{ID: sessionID}
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UnixMilli()
	return f.save(s)
}

func (f *FileStore) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileStore) List(ctx context.Context, agentName string, limit, offset int) ([]Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		s, err := f.load(id)
		if err != nil || s == nil {
			continue
		}
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

func (f *FileStore) GetOrCreate(ctx context.Context, sessionID, agentName string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load(sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Session{ID: sessionID, AgentName: agentName, UpdatedAt: time.Now().UnixMilli()}
		if err := f.save(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}
