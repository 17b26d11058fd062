package agent

import (
	"context"
	"time"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/llm"
	"github.com/periplon/metis/internal/memory"
)

// Kind selects which of the three executor loops Execute runs.
type Kind string

const (
	KindSingleTurn Kind = "single_turn"
	KindMultiTurn  Kind = "multi_turn"
	KindReAct      Kind = "react"
)

// streamBuffer matches the buffer size the LLM provider streams use
// (internal/llm's openai/anthropic/gemini CompleteStream channels).
const streamBuffer = 64

// Config describes one configured agent: its model, prompt, tool surface,
// and (for MultiTurn) memory behavior.
type Config struct {
	Name          string           `json:"name"`
	Kind          Kind             `json:"kind"`
	Provider      string           `json:"provider"`
	Model         string           `json:"model,omitempty"`
	SystemPrompt  string           `json:"system_prompt,omitempty"`
	MaxIterations int              `json:"max_iterations,omitempty"` // 0 = unbounded (ReAct only)
	Temperature   float64          `json:"temperature,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	MemoryAgent   string           `json:"memory_agent,omitempty"` // agent_name recorded against the session
	Strategy      memory.Strategy  `json:"strategy,omitempty"`
	BudgetTokens  int              `json:"budget_tokens,omitempty"` // 0 = no token budget ceiling
}

// Agent executes one configured agent's loop against a provider registry,
// an optional memory store, and an optional tool executor.
type Agent struct {
	cfg      Config
	registry *llm.Registry
	store    memory.Store
	tools    ToolExecutor
	now      func() time.Time
}

// New builds an Agent. store and tools may be nil for a SingleTurn-only
// agent with no tool surface.
func New(cfg Config, registry *llm.Registry, store memory.Store, tools ToolExecutor) *Agent {
	return &Agent{cfg: cfg, registry: registry, store: store, tools: tools, now: time.Now}
}

// Execute runs the agent's configured Kind and returns a channel of
// AgentChunk, closed after exactly one Complete or Error chunk.
// sessionID is required for MultiTurn (per spec §4.E's get_or_create),
// only echoed on the final AgentResponse by ReAct, and ignored by
// SingleTurn.
func (a *Agent) Execute(ctx context.Context, input, sessionID string) (<-chan AgentChunk, error) {
	provider, ok := a.registry.Get(a.cfg.Provider)
	if !ok {
		return nil, &apperr.Validation{Field: "agent.provider", Reason: "provider " + a.cfg.Provider + " is not registered"}
	}

	ch := make(chan AgentChunk, streamBuffer)
	go func() {
		defer close(ch)
		switch a.cfg.Kind {
		case KindMultiTurn:
			a.runMultiTurn(ctx, provider, input, sessionID, ch)
		case KindReAct:
			a.runReAct(ctx, provider, input, sessionID, ch)
		default:
			a.runSingleTurn(ctx, provider, buildMessages(a.cfg.SystemPrompt, input), ch)
		}
	}()
	return ch, nil
}

// WithTools returns a shallow copy of the agent with its tool executor and
// tool definitions replaced, leaving the rest of cfg untouched. Used by
// internal/orchestration's hierarchical pattern to rebind a manager agent's
// executor onto a worker-dispatch ToolExecutor without mutating the
// original registry entry.
func (a *Agent) WithTools(tools []ToolDefinition, executor ToolExecutor) *Agent {
	cfg := a.cfg
	cfg.Tools = tools
	return &Agent{cfg: cfg, registry: a.registry, store: a.store, tools: executor, now: a.now}
}

func buildMessages(systemPrompt, userInput string) []llm.Message {
	var messages []llm.Message
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userInput})
	return messages
}
