package memory

import (
	"context"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if err := s.AddMessage(ctx, "sess-a", Message{Role: "user", Content: "one"}); err != nil {
		t.Fatalf("add_message: %v", err)
	}
	if err := s.AddMessage(ctx, "sess-a", Message{Role: "assistant", Content: "two"}); err != nil {
		t.Fatalf("add_message: %v", err)
	}

	session, err := s.Load(ctx, "sess-a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(session.Messages) != 2 || session.Messages[0].Content != "one" || session.Messages[1].Content != "two" {
		t.Fatalf("unexpected messages: %#v", session)
	}

	summaries, err := s.List(ctx, "", 0, 0)
	if err != nil || len(summaries) != 1 || summaries[0].ID != "sess-a" || summaries[0].MessageCount != 2 {
		t.Fatalf("unexpected list: %#v, err=%v", summaries, err)
	}

	if err := s.Delete(ctx, "sess-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	session, err = s.Load(ctx, "sess-a")
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session after delete, got %#v", session)
	}
}

func TestFileStoreGetOrCreate(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	session, err := s.GetOrCreate(ctx, "sess-b", "demo-agent")
	if err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if len(session.Messages) != 0 {
		t.Fatalf("expected empty history for new session, got %#v", session)
	}
	if session.AgentName != "demo-agent" {
		t.Fatalf("expected agent_name to be recorded, got %q", session.AgentName)
	}

	if err := s.AddMessage(ctx, "sess-b", Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("add_message: %v", err)
	}
	session, err = s.GetOrCreate(ctx, "sess-b", "demo-agent")
	if err != nil {
		t.Fatalf("get_or_create after add: %v", err)
	}
	if len(session.Messages) != 1 || session.Messages[0].Content != "hi" {
		t.Fatalf("unexpected messages: %#v", session)
	}
}

func TestFileStorePagination(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.GetOrCreate(ctx, id, ""); err != nil {
			t.Fatalf("get_or_create %s: %v", id, err)
		}
	}

	page, err := s.List(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}
