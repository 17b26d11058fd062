package orchestration

import (
	"context"
	"errors"

	"github.com/periplon/metis/internal/agent"
)

// runSequential runs cfg.Agents in order, passing each agent's output as
// the next agent's prompt, grounded on
// original_source/src/agents/orchestration/sequential.rs's execute_internal:
// optional scripted `condition` gates whether an agent runs, optional
// scripted `input_transform` derives its input from {results, input}.
func (e *Engine) runSequential(ctx context.Context, cfg Config, input, sessionID string, ch chan<- agent.AgentChunk) {
	ch <- agent.AgentChunk{Type: agent.ChunkStatus, Status: agent.StatusStarting}

	results := map[string]any{}
	var allToolCalls []agent.ToolCallResult
	currentInput := any(input)
	ran := 0

	for _, ref := range cfg.Agents {
		if ref.Condition != "" {
			ok, err := evalCondition(ref.Condition, results, currentInput)
			if err != nil {
				emitError(ch, err)
				return
			}
			if !ok {
				ch <- agent.AgentChunk{Type: agent.ChunkThought, Thought: "skipping agent " + ref.Agent + " due to condition"}
				continue
			}
		}

		a, ok := e.Get(ref.Agent)
		if !ok {
			emitError(ch, missingAgentErr(ref.Agent))
			return
		}

		agentInput := promptFrom(currentInput)
		if ref.InputTransform != "" {
			transformed, err := evalTransform(ref.InputTransform, results, currentInput)
			if err != nil {
				emitError(ch, err)
				return
			}
			agentInput = transformed
		}

		ch <- agent.AgentChunk{Type: agent.ChunkThought, Thought: "executing agent " + ref.Agent}

		resp, err := runAgentToCompletion(ctx, a, agentInput, sessionID, ch)
		if err != nil {
			emitError(ch, err)
			return
		}
		ran++

		results[ref.Agent] = resp.Output
		allToolCalls = append(allToolCalls, resp.ToolCalls...)
		currentInput = resp.Output
	}

	ch <- agent.AgentChunk{
		Type: agent.ChunkComplete,
		Response: &agent.AgentResponse{
			Output:     map[string]any{"results": results},
			ToolCalls:  allToolCalls,
			SessionID:  sessionID,
			Iterations: ran,
		},
	}
}

// runAgentToCompletion drives one agent's stream to its terminal chunk,
// forwarding every non-terminal chunk onto ch and returning the final
// response (or the agent's own error).
func runAgentToCompletion(ctx context.Context, a *agent.Agent, input, sessionID string, ch chan<- agent.AgentChunk) (*agent.AgentResponse, error) {
	stream, err := a.Execute(ctx, input, sessionID)
	if err != nil {
		return nil, err
	}
	for chunk := range stream {
		switch chunk.Type {
		case agent.ChunkComplete:
			return chunk.Response, nil
		case agent.ChunkError:
			return nil, errors.New(chunk.Error)
		default:
			ch <- chunk
		}
	}
	return nil, errors.New("agent stream closed without a terminal chunk")
}

// promptFrom coerces an orchestration value (string or structured output)
// into the string prompt agent.Agent.Execute expects.
func promptFrom(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return toJSONString(v)
}
