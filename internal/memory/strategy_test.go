package memory

import (
	"context"
	"testing"
)

func msgs(contents ...string) []Message {
	out := make([]Message, len(contents))
	for i, c := range contents {
		out[i] = Message{Role: "user", Content: c}
	}
	return out
}

func TestSlidingWindowBasic(t *testing.T) {
	result := Apply(msgs("1", "2", "3", "4", "5"), Strategy{Kind: "sliding_window", N: 3})
	if len(result) != 3 || result[0].Content != "3" || result[2].Content != "5" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSlidingWindowPreservesSystem(t *testing.T) {
	m := []Message{
		{Role: "system", Content: "system"},
		{Role: "user", Content: "1"},
		{Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"},
		{Role: "assistant", Content: "4"},
	}
	result := Apply(m, Strategy{Kind: "sliding_window", N: 2})
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d: %#v", len(result), result)
	}
	if result[0].Role != "system" || result[1].Content != "3" || result[2].Content != "4" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestFirstLast(t *testing.T) {
	result := Apply(msgs("1", "2", "3", "4", "5", "6"), Strategy{Kind: "first_last", F: 2, L: 2})
	if len(result) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(result))
	}
	want := []string{"1", "2", "5", "6"}
	for i, w := range want {
		if result[i].Content != w {
			t.Fatalf("index %d: expected %q, got %q", i, w, result[i].Content)
		}
	}
}

func TestSlidingWindowKeepsToolCallPairing(t *testing.T) {
	m := []Message{
		{Role: "user", Content: "1"},
		{Role: "assistant", Content: "2"},
		{Role: "tool", Content: "3"},
		{Role: "assistant", Content: "4"},
		{Role: "user", Content: "5"},
	}
	// A plain window of 2 would start at index 3 ("4", "5"), splitting
	// nothing here; a window of 3 makes the boundary land on the tool
	// message at index 2, which must pull in its assistant call at index 1.
	result := Apply(m, Strategy{Kind: "sliding_window", N: 3})
	if len(result) != 4 {
		t.Fatalf("expected window extended to include paired assistant call, got %#v", result)
	}
	if result[0].Role != "assistant" || result[1].Role != "tool" {
		t.Fatalf("expected assistant+tool pair preserved, got %#v", result)
	}
}

func TestFullKeepsEverything(t *testing.T) {
	m := msgs("1", "2", "3")
	result := Apply(m, Strategy{Kind: "full"})
	if len(result) != 3 {
		t.Fatalf("expected all messages kept, got %d", len(result))
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	if _, err := s.GetOrCreate(ctx, "sess-1", "assistant-agent"); err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if err := s.AddMessage(ctx, "sess-1", Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("add_message: %v", err)
	}

	loaded, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hi" {
		t.Fatalf("unexpected loaded messages: %#v", loaded)
	}
	if loaded.AgentName != "assistant-agent" {
		t.Fatalf("expected agent_name to survive add_message, got %q", loaded.AgentName)
	}

	summaries, err := s.List(ctx, "", 0, 0)
	if err != nil || len(summaries) != 1 || summaries[0].ID != "sess-1" {
		t.Fatalf("unexpected list: %#v, err=%v", summaries, err)
	}

	if _, err := s.List(ctx, "other-agent", 0, 0); err != nil {
		t.Fatalf("list with agent filter: %v", err)
	}
	if filtered, _ := s.List(ctx, "other-agent", 0, 0); len(filtered) != 0 {
		t.Fatalf("expected agent filter to exclude sess-1, got %#v", filtered)
	}

	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	summaries, _ = s.List(ctx, "", 0, 0)
	if len(summaries) != 0 {
		t.Fatalf("expected empty list after delete, got %#v", summaries)
	}
}
