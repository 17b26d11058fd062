package orchestration

import (
	"context"

	"github.com/periplon/metis/internal/agent"
	"github.com/periplon/metis/internal/apperr"
)

// workerDispatcher is an agent.ToolExecutor that turns tool calls matching
// a worker's name into a full run of that worker agent, forwarding its
// intermediate chunks onto the shared output channel. Workers never share
// a session with each other or with the manager (spec §4.G: "worker agents
// do not see each other's histories").
type workerDispatcher struct {
	ctx       context.Context
	engine    *Engine
	workers   []string
	sessionID string
	ch        chan<- agent.AgentChunk
}

func (w *workerDispatcher) Execute(ctx context.Context, name string, arguments map[string]any) (any, error) {
	worker, ok := w.engine.Get(name)
	if !ok {
		return nil, missingAgentErr(name)
	}

	input, _ := arguments["input"].(string)
	if input == "" {
		input = toJSONString(arguments)
	}

	resp, err := runAgentToCompletion(ctx, worker, input, w.sessionID+"/"+name, w.ch)
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

func (w *workerDispatcher) toolDefinitions() []agent.ToolDefinition {
	defs := make([]agent.ToolDefinition, 0, len(w.workers))
	for _, name := range w.workers {
		defs = append(defs, agent.ToolDefinition{
			Name:        name,
			Description: "Delegate a subtask to the " + name + " worker agent.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"input": map[string]any{"type": "string", "description": "the subtask prompt for this worker"},
				},
				"required": []string{"input"},
			},
		})
	}
	return defs
}

// runHierarchical resolves cfg's manager and treats cfg.Workers as callable
// tools, rebinding the manager's tool surface via agent.Agent.WithTools so
// its ReAct loop can delegate subtasks. This replaces
// original_source/src/agents/orchestration/hierarchical.rs, whose
// execute_internal is an acknowledged placeholder ("Hierarchical
// orchestration is not yet fully implemented").
func (e *Engine) runHierarchical(ctx context.Context, cfg Config, input, sessionID string, ch chan<- agent.AgentChunk) {
	ch <- agent.AgentChunk{Type: agent.ChunkStatus, Status: agent.StatusStarting}

	if cfg.ManagerAgent == "" {
		emitError(ch, &apperr.Validation{Field: "manager_agent", Reason: "hierarchical orchestration requires a manager_agent"})
		return
	}
	manager, ok := e.Get(cfg.ManagerAgent)
	if !ok {
		emitError(ch, missingAgentErr(cfg.ManagerAgent))
		return
	}

	dispatcher := &workerDispatcher{ctx: ctx, engine: e, workers: cfg.Workers, sessionID: sessionID, ch: ch}
	delegate := manager.WithTools(dispatcher.toolDefinitions(), dispatcher)

	resp, err := runAgentToCompletion(ctx, delegate, input, sessionID, ch)
	if err != nil {
		emitError(ch, err)
		return
	}
	ch <- agent.AgentChunk{Type: agent.ChunkComplete, Response: resp}
}
