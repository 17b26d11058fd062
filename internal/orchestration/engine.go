package orchestration

import (
	"context"

	"github.com/periplon/metis/internal/agent"
	"github.com/periplon/metis/internal/apperr"
)

// engineBuffer matches the agent package's stream channel buffer size.
const engineBuffer = 64

// Engine holds a name → Agent registry and runs orchestrations over it,
// grounded on original_source/src/agents/orchestration/mod.rs's
// OrchestrationEngine.
type Engine struct {
	agents map[string]*agent.Agent
}

// New creates an Engine over the given name → Agent registry.
func New(agents map[string]*agent.Agent) *Engine {
	return &Engine{agents: agents}
}

// Get returns a registered agent by name.
func (e *Engine) Get(name string) (*agent.Agent, bool) {
	a, ok := e.agents[name]
	return a, ok
}

// Names lists the registered agent names.
func (e *Engine) Names() []string {
	out := make([]string, 0, len(e.agents))
	for name := range e.agents {
		out = append(out, name)
	}
	return out
}

// Execute runs cfg's pattern over input and returns a stream of chunks
// terminated by exactly one Complete or Error, mirroring agent.Agent's
// own Execute contract (spec §4.G composes over §4.F).
func (e *Engine) Execute(ctx context.Context, cfg Config, input, sessionID string) (<-chan agent.AgentChunk, error) {
	ch := make(chan agent.AgentChunk, engineBuffer)

	var run func(context.Context, chan<- agent.AgentChunk)
	switch cfg.Pattern {
	case PatternHierarchical:
		run = func(ctx context.Context, ch chan<- agent.AgentChunk) { e.runHierarchical(ctx, cfg, input, sessionID, ch) }
	case PatternCollaborative:
		run = func(ctx context.Context, ch chan<- agent.AgentChunk) { e.runCollaborative(ctx, cfg, input, sessionID, ch) }
	default:
		run = func(ctx context.Context, ch chan<- agent.AgentChunk) { e.runSequential(ctx, cfg, input, sessionID, ch) }
	}

	go func() {
		defer close(ch)
		run(ctx, ch)
	}()
	return ch, nil
}

func emitError(ch chan<- agent.AgentChunk, err error) {
	ch <- agent.AgentChunk{Type: agent.ChunkError, Error: err.Error()}
}

func missingAgentErr(name string) error {
	return &apperr.Validation{Field: "agent", Reason: "agent " + name + " is not registered"}
}
