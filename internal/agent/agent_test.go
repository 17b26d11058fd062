package agent

import (
	"context"
	"net/http"
	"testing"

	"github.com/periplon/metis/internal/llm"
	"github.com/periplon/metis/internal/memory"
)

// fakeProvider implements llm.Provider only (no streaming), exercising the
// runCompletionOnce fallback path.
type fakeProvider struct {
	resp *llm.Response
	err  error
}

func (f *fakeProvider) Complete(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	return f.resp, f.err
}

func collectChunks(ch <-chan AgentChunk) []AgentChunk {
	var out []AgentChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func registryWith(key string, p llm.Provider) *llm.Registry {
	r := llm.NewRegistry()
	r.Register(key, p)
	return r
}

func TestSingleTurnHappyPath(t *testing.T) {
	provider := &fakeProvider{resp: &llm.Response{Content: "hello there", Usage: llm.Usage{TotalTokens: 10}}}
	a := New(Config{Kind: KindSingleTurn, Provider: "p"}, registryWith("p", provider), nil, nil)

	ch, err := a.Execute(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)

	last := chunks[len(chunks)-1]
	if last.Type != ChunkComplete {
		t.Fatalf("expected last chunk to be complete, got %#v", last)
	}
	if last.Response.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", last.Response.Iterations)
	}
	out, ok := last.Response.Output.(map[string]any)
	if !ok || out["content"] != "hello there" {
		t.Fatalf("unexpected output: %#v", last.Response.Output)
	}
}

func TestSingleTurnUnknownProvider(t *testing.T) {
	a := New(Config{Kind: KindSingleTurn, Provider: "missing"}, llm.NewRegistry(), nil, nil)
	if _, err := a.Execute(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestMultiTurnRequiresSession(t *testing.T) {
	provider := &fakeProvider{resp: &llm.Response{Content: "ok"}}
	a := New(Config{Kind: KindMultiTurn, Provider: "p"}, registryWith("p", provider), memory.NewInMemory(), nil)

	ch, err := a.Execute(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != ChunkError {
		t.Fatalf("expected error chunk without session id, got %#v", last)
	}
}

func TestMultiTurnPersistsOnSuccess(t *testing.T) {
	provider := &fakeProvider{resp: &llm.Response{Content: "reply"}}
	store := memory.NewInMemory()
	a := New(Config{Kind: KindMultiTurn, Provider: "p", MemoryAgent: "demo"}, registryWith("p", provider), store, nil)

	ch, err := a.Execute(context.Background(), "hi", "sess-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != ChunkComplete {
		t.Fatalf("expected complete chunk, got %#v", last)
	}

	session, err := store.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(session.Messages) != 2 || session.Messages[0].Role != "user" || session.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected persisted messages: %#v", session.Messages)
	}
}

func TestMultiTurnDoesNotPersistOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: errTest("boom")}
	store := memory.NewInMemory()
	a := New(Config{Kind: KindMultiTurn, Provider: "p"}, registryWith("p", provider), store, nil)

	ch, _ := a.Execute(context.Background(), "hi", "sess-2")
	chunks := collectChunks(ch)
	if chunks[len(chunks)-1].Type != ChunkError {
		t.Fatalf("expected error chunk")
	}

	session, _ := store.Load(context.Background(), "sess-2")
	if session != nil {
		t.Fatalf("expected no session persisted on provider error, got %#v", session)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

// fakeToolExecutor always succeeds, echoing its arguments back.
type fakeToolExecutor struct{}

func (fakeToolExecutor) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	return map[string]any{"echo": args}, nil
}

// reactProvider returns a tool_calls response on its first Complete call
// and a finishing text response thereafter, exercising the ReAct loop's
// multi-iteration path through the non-streaming fallback.
type reactProvider struct {
	calls int
}

func (p *reactProvider) Complete(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	p.calls++
	if p.calls == 1 {
		return &llm.Response{
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "lookup", Arguments: map[string]any{"q": "x"}}},
		}, nil
	}
	return &llm.Response{Content: "final answer"}, nil
}

func TestReActRunsToolThenCompletes(t *testing.T) {
	provider := &reactProvider{}
	a := New(Config{
		Kind:          KindReAct,
		Provider:      "p",
		MaxIterations: 5,
		Tools:         []ToolDefinition{{Name: "lookup", Description: "looks things up"}},
	}, registryWith("p", provider), nil, fakeToolExecutor{})

	ch, err := a.Execute(context.Background(), "find x", "sess-react")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)

	var sawToolCall, sawToolResult bool
	for _, c := range chunks {
		if c.Type == ChunkToolCall {
			sawToolCall = true
		}
		if c.Type == ChunkToolResult {
			sawToolResult = true
		}
	}
	if !sawToolCall || !sawToolResult {
		t.Fatalf("expected tool_call and tool_result chunks, got %#v", chunks)
	}

	last := chunks[len(chunks)-1]
	if last.Type != ChunkComplete {
		t.Fatalf("expected final complete chunk, got %#v", last)
	}
	if last.Response.Iterations != 2 {
		t.Fatalf("expected 2 iterations (tool round + final), got %d", last.Response.Iterations)
	}
	if len(last.Response.ToolCalls) != 1 || !last.Response.ToolCalls[0].Success {
		t.Fatalf("expected 1 successful tool call result, got %#v", last.Response.ToolCalls)
	}
}

func TestReActMaxIterations(t *testing.T) {
	provider := &reactProvider{} // finishes after one tool round; foreverToolCallProvider below never finishes
	alwaysTool := &foreverToolCallProvider{}
	a := New(Config{Kind: KindReAct, Provider: "p", MaxIterations: 2, Tools: []ToolDefinition{{Name: "lookup"}}},
		registryWith("p", alwaysTool), nil, fakeToolExecutor{})
	_ = provider

	ch, err := a.Execute(context.Background(), "find x", "sess")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != ChunkError {
		t.Fatalf("expected error chunk on max iterations, got %#v", last)
	}
}

type foreverToolCallProvider struct{}

func (foreverToolCallProvider) Complete(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "call_x", Name: "lookup", Arguments: map[string]any{}}}}, nil
}

func TestSingleTurnStreamingPath(t *testing.T) {
	provider := &streamOnlyProvider{chunks: []llm.StreamChunk{
		{Content: "hel"},
		{Content: "lo"},
		{Usage: &llm.Usage{TotalTokens: 3}, FinishReason: "stop"},
	}}
	a := New(Config{Kind: KindSingleTurn, Provider: "p"}, registryWith("p", provider), nil, nil)

	ch, err := a.Execute(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)

	var text string
	for _, c := range chunks {
		if c.Type == ChunkText {
			text += c.Content
		}
	}
	if text != "hello" {
		t.Fatalf("expected streamed text to concatenate to 'hello', got %q", text)
	}
	last := chunks[len(chunks)-1]
	if last.Type != ChunkComplete || last.Response.Output.(map[string]any)["content"] != "hello" {
		t.Fatalf("unexpected final chunk: %#v", last)
	}
}

// streamOnlyProvider implements llm.StreamProvider using the package's
// real http.Header-based signature.
type streamOnlyProvider struct {
	chunks []llm.StreamChunk
}

func (s *streamOnlyProvider) Complete(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	return &llm.Response{}, nil
}

func (s *streamOnlyProvider) CompleteStream(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (<-chan llm.StreamChunk, http.Header, error) {
	out := make(chan llm.StreamChunk, len(s.chunks))
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	return out, nil, nil
}
