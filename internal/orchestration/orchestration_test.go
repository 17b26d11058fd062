package orchestration

import (
	"context"
	"testing"

	"github.com/periplon/metis/internal/agent"
	"github.com/periplon/metis/internal/llm"
)

// fakeProvider returns a fixed, non-streaming completion, exercising the
// agent package's runCompletionOnce fallback.
type fakeProvider struct {
	content string
}

func (f *fakeProvider) Complete(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	return &llm.Response{Content: f.content}, nil
}

func newSingleTurnAgent(t *testing.T, name, reply string) *agent.Agent {
	t.Helper()
	registry := llm.NewRegistry()
	registry.Register("p", &fakeProvider{content: reply})
	return agent.New(agent.Config{Name: name, Kind: agent.KindSingleTurn, Provider: "p"}, registry, nil, nil)
}

func collectChunks(ch <-chan agent.AgentChunk) []agent.AgentChunk {
	var out []agent.AgentChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestSequentialChainsAgentOutputs(t *testing.T) {
	e := New(map[string]*agent.Agent{
		"first":  newSingleTurnAgent(t, "first", "step one"),
		"second": newSingleTurnAgent(t, "second", "step two"),
	})
	cfg := Config{
		Pattern: PatternSequential,
		Agents:  []AgentRef{{Agent: "first"}, {Agent: "second"}},
	}

	ch, err := e.Execute(context.Background(), cfg, "go", "sess-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != agent.ChunkComplete {
		t.Fatalf("expected complete chunk, got %#v", last)
	}
	if last.Response.Iterations != 2 {
		t.Fatalf("expected 2 agents to run, got %d", last.Response.Iterations)
	}
	results, ok := last.Response.Output.(map[string]any)["results"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected output shape: %#v", last.Response.Output)
	}
	if results["first"] == nil || results["second"] == nil {
		t.Fatalf("expected both agents' results recorded, got %#v", results)
	}
}

func TestSequentialSkipsAgentOnFalseCondition(t *testing.T) {
	e := New(map[string]*agent.Agent{
		"first":  newSingleTurnAgent(t, "first", "step one"),
		"second": newSingleTurnAgent(t, "second", "step two"),
	})
	cfg := Config{
		Pattern: PatternSequential,
		Agents: []AgentRef{
			{Agent: "first", Condition: "false"},
			{Agent: "second"},
		},
	}

	ch, err := e.Execute(context.Background(), cfg, "go", "sess-2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Response.Iterations != 1 {
		t.Fatalf("expected only 1 agent to actually run, got %d", last.Response.Iterations)
	}
	var sawSkipThought bool
	for _, c := range chunks {
		if c.Type == agent.ChunkThought && c.Thought != "" {
			sawSkipThought = true
		}
	}
	if !sawSkipThought {
		t.Fatalf("expected a thought chunk noting the skip")
	}
}

func TestSequentialMissingAgentErrors(t *testing.T) {
	e := New(map[string]*agent.Agent{"first": newSingleTurnAgent(t, "first", "ok")})
	cfg := Config{Pattern: PatternSequential, Agents: []AgentRef{{Agent: "ghost"}}}

	ch, err := e.Execute(context.Background(), cfg, "go", "sess-3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	if chunks[len(chunks)-1].Type != agent.ChunkError {
		t.Fatalf("expected error chunk for unregistered agent, got %#v", chunks[len(chunks)-1])
	}
}

func TestHierarchicalDelegatesToWorker(t *testing.T) {
	manager := newReActManagerAgent(t)
	worker := newSingleTurnAgent(t, "researcher", "worker output")

	e := New(map[string]*agent.Agent{
		"manager":    manager,
		"researcher": worker,
	})
	cfg := Config{
		Pattern:      PatternHierarchical,
		ManagerAgent: "manager",
		Workers:      []string{"researcher"},
	}

	ch, err := e.Execute(context.Background(), cfg, "research x", "sess-h")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != agent.ChunkComplete {
		t.Fatalf("expected complete chunk, got %#v", last)
	}
}

func TestHierarchicalRequiresManager(t *testing.T) {
	e := New(map[string]*agent.Agent{"researcher": newSingleTurnAgent(t, "researcher", "x")})
	cfg := Config{Pattern: PatternHierarchical, Workers: []string{"researcher"}}

	ch, err := e.Execute(context.Background(), cfg, "go", "sess-h2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	if chunks[len(chunks)-1].Type != agent.ChunkError {
		t.Fatalf("expected error chunk without a manager_agent")
	}
}

// managerToolProvider issues one tool call to the given worker name, then
// finishes on the next turn.
type managerToolProvider struct {
	worker string
	calls  int
}

func (p *managerToolProvider) Complete(ctx context.Context, model string, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	p.calls++
	if p.calls == 1 {
		return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "c1", Name: p.worker, Arguments: map[string]any{"input": "delegate this"}}}}, nil
	}
	return &llm.Response{Content: "done"}, nil
}

func newReActManagerAgent(t *testing.T) *agent.Agent {
	t.Helper()
	registry := llm.NewRegistry()
	registry.Register("p", &managerToolProvider{worker: "researcher"})
	return agent.New(agent.Config{Name: "manager", Kind: agent.KindReAct, Provider: "p", MaxIterations: 4}, registry, nil, nil)
}

func TestCollaborativeConcatRunsAllParticipants(t *testing.T) {
	e := New(map[string]*agent.Agent{
		"a": newSingleTurnAgent(t, "a", "answer a"),
		"b": newSingleTurnAgent(t, "b", "answer b"),
	})
	cfg := Config{Pattern: PatternCollaborative, Participants: []string{"a", "b"}, MergePolicy: MergeConcat}

	ch, err := e.Execute(context.Background(), cfg, "question", "sess-c1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != agent.ChunkComplete {
		t.Fatalf("expected complete chunk, got %#v", last)
	}
	results, ok := last.Response.Output.(map[string]any)["results"].(map[string]any)
	if !ok || len(results) != 2 {
		t.Fatalf("expected both participants' results, got %#v", last.Response.Output)
	}
}

func TestCollaborativeFirstReturnsOneWinner(t *testing.T) {
	e := New(map[string]*agent.Agent{
		"a": newSingleTurnAgent(t, "a", "fast"),
		"b": newSingleTurnAgent(t, "b", "slow"),
	})
	cfg := Config{Pattern: PatternCollaborative, Participants: []string{"a", "b"}, MergePolicy: MergeFirst}

	ch, err := e.Execute(context.Background(), cfg, "question", "sess-c2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	last := chunks[len(chunks)-1]
	if last.Type != agent.ChunkComplete {
		t.Fatalf("expected complete chunk, got %#v", last)
	}
	out, ok := last.Response.Output.(map[string]any)
	if !ok || out["winner"] == nil {
		t.Fatalf("expected a winner field, got %#v", last.Response.Output)
	}
}

func TestCollaborativeRequiresParticipants(t *testing.T) {
	e := New(map[string]*agent.Agent{})
	cfg := Config{Pattern: PatternCollaborative}

	ch, err := e.Execute(context.Background(), cfg, "q", "sess-c3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	chunks := collectChunks(ch)
	if chunks[len(chunks)-1].Type != agent.ChunkError {
		t.Fatalf("expected error chunk for empty participants")
	}
}
