package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/periplon/metis/internal/agent"
	"github.com/periplon/metis/internal/llm"
	"github.com/periplon/metis/internal/memory"
	"github.com/periplon/metis/internal/orchestration"
	"github.com/periplon/metis/internal/persistence"
)

// agentDefinition is the `agent` archetype's Definition payload, decoded
// straight into agent.Config.
type agentDefinition = agent.Config

// orchestrationDefinition is the `orchestration` archetype's Definition
// payload, decoded straight into orchestration.Config.
type orchestrationDefinition = orchestration.Config

// LoadAgents decodes every `agent` archetype into a name → *agent.Agent
// registry, wired against llmRegistry and memStore (the shared Memory Store
// backing MultiTurn sessions). tools may be nil for agents whose
// Config.Tools is empty.
func LoadAgents(ctx context.Context, store *persistence.Store, llmRegistry *llm.Registry, memStore memory.Store, tools agent.ToolExecutor) (map[string]*agent.Agent, error) {
	archetypes, err := store.ListArchetypes(ctx, persistence.KindAgent)
	if err != nil {
		return nil, fmt.Errorf("registry: list agents: %w", err)
	}

	agents := make(map[string]*agent.Agent, len(archetypes))
	for _, a := range archetypes {
		var cfg agentDefinition
		if err := json.Unmarshal(a.Definition, &cfg); err != nil {
			return nil, fmt.Errorf("agent %q: invalid definition: %w", a.Name, err)
		}
		if cfg.Name == "" {
			cfg.Name = a.Name
		}
		agents[a.Name] = agent.New(cfg, llmRegistry, memStore, tools)
	}
	return agents, nil
}

// LoadOrchestrations decodes every `orchestration` archetype into a
// name → orchestration.Config map, for agentport.New's second argument.
func LoadOrchestrations(ctx context.Context, store *persistence.Store) (map[string]orchestration.Config, error) {
	archetypes, err := store.ListArchetypes(ctx, persistence.KindOrchestration)
	if err != nil {
		return nil, fmt.Errorf("registry: list orchestrations: %w", err)
	}

	out := make(map[string]orchestrationDefinition, len(archetypes))
	for _, a := range archetypes {
		var cfg orchestrationDefinition
		if err := json.Unmarshal(a.Definition, &cfg); err != nil {
			return nil, fmt.Errorf("orchestration %q: invalid definition: %w", a.Name, err)
		}
		out[a.Name] = cfg
	}
	return out, nil
}
