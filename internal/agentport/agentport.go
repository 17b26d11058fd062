// Package agentport implements the AgentPort external interface (spec
// §4.K): a name → (Agent | Orchestration) lookup exposing one
// execute(name, input, session_id?) → stream<AgentChunk> contract,
// generalized over internal/agent.Agent and internal/orchestration.Engine
// so pkg/mcp's agents/execute method doesn't need to know which kind of
// target it invoked.
package agentport

import (
	"context"
	"sort"

	"github.com/periplon/metis/internal/agent"
	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/orchestration"
)

// Port resolves a name against either the plain agent registry or the
// orchestration config registry, preferring orchestrations (a name can
// only be registered in one of the two; callers are responsible for that).
type Port struct {
	agents         map[string]*agent.Agent
	orchestrations map[string]orchestration.Config
	engine         *orchestration.Engine
}

// New builds a Port over the given agents and named orchestration
// configs. The orchestration engine is constructed from the same agents
// map so sequential/hierarchical/collaborative patterns can reference
// them by name.
func New(agents map[string]*agent.Agent, orchestrations map[string]orchestration.Config) *Port {
	return &Port{
		agents:         agents,
		orchestrations: orchestrations,
		engine:         orchestration.New(agents),
	}
}

// Execute dispatches to the named agent or orchestration.
func (p *Port) Execute(ctx context.Context, name, input, sessionID string) (<-chan agent.AgentChunk, error) {
	if cfg, ok := p.orchestrations[name]; ok {
		return p.engine.Execute(ctx, cfg, input, sessionID)
	}
	if a, ok := p.agents[name]; ok {
		return a.Execute(ctx, input, sessionID)
	}
	return nil, &apperr.Validation{Field: "name", Reason: "no agent or orchestration named " + name}
}

// Names lists every executable target, agents and orchestrations alike,
// sorted for stable listing responses.
func (p *Port) Names() []string {
	out := make([]string, 0, len(p.agents)+len(p.orchestrations))
	for name := range p.agents {
		out = append(out, name)
	}
	for name := range p.orchestrations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
