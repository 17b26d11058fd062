// Package agent implements the Agent Executors (spec §4.F): SingleTurn,
// MultiTurn, and ReAct loops over the LLM Provider Abstraction, each
// producing a stream of AgentChunk values terminated by exactly one
// Complete or Error chunk.
package agent

import (
	"context"

	"github.com/periplon/metis/internal/llm"
)

// AgentChunk is a tagged union over the kinds of events an agent execution
// can emit, mirroring original_source/src/agents/domain/response.rs's
// AgentChunk enum. Go has no sum types, so this is one struct with a
// discriminating Type and the fields that Type uses.
type AgentChunk struct {
	Type string `json:"type"`

	// Text
	Content string `json:"content,omitempty"`

	// ToolCall
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"name,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`

	// ToolResult (reuses ToolCallID/ToolName above)
	Result  any    `json:"result,omitempty"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`

	// Thought
	Thought string `json:"thought,omitempty"`

	// Status
	Status string `json:"status,omitempty"`

	// Usage
	Usage *llm.Usage `json:"usage,omitempty"`

	// Complete
	Response *AgentResponse `json:"response,omitempty"`
}

const (
	ChunkText       = "text"
	ChunkToolCall   = "tool_call"
	ChunkToolResult = "tool_result"
	ChunkThought    = "thought"
	ChunkStatus     = "status"
	ChunkUsage      = "usage"
	ChunkComplete   = "complete"
	ChunkError      = "error"
)

// Agent execution statuses, carried by a Status chunk.
const (
	StatusStarting   = "starting"
	StatusThinking   = "thinking"
	StatusCalling    = "calling_tool"
	StatusReceived   = "tool_result_received"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

func textChunk(content string) AgentChunk { return AgentChunk{Type: ChunkText, Content: content} }

func statusChunk(status string) AgentChunk { return AgentChunk{Type: ChunkStatus, Status: status} }

func usageChunk(u llm.Usage) AgentChunk { return AgentChunk{Type: ChunkUsage, Usage: &u} }

func errorChunk(msg string) AgentChunk { return AgentChunk{Type: ChunkError, Error: msg} }

func completeChunk(resp AgentResponse) AgentChunk {
	return AgentChunk{Type: ChunkComplete, Response: &resp}
}

// AgentResponse is the final, collected result of an agent execution,
// grounded on response.rs's AgentResponse.
type AgentResponse struct {
	Output          any              `json:"output"`
	ToolCalls       []ToolCallResult `json:"tool_calls,omitempty"`
	ReasoningSteps  []string         `json:"reasoning_steps,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	Iterations      int              `json:"iterations"`
	Usage           *llm.Usage       `json:"usage,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// ToolCallResult records one executed tool call, grounded on
// tool_call.rs's ToolCallResult (including execution_time_ms, which
// response.rs's AgentChunk::ToolResult deliberately omits but the final
// AgentResponse.tool_calls carries).
type ToolCallResult struct {
	ToolCallID      string `json:"tool_call_id"`
	ToolName        string `json:"tool_name"`
	Input           any    `json:"input"`
	Output          any    `json:"output"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}

// ToolDefinition describes a tool available to an agent, grounded on
// tool_call.rs's ToolDefinition.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolExecutor runs a tool call by name, implemented by whatever collects
// MCP/skill/inline tools for the executing session (mirrors
// internal/service/workflow/nodes/agent-call.go's toolHandlers + MCP
// dispatch, generalized behind one interface here).
type ToolExecutor interface {
	Execute(ctx context.Context, name string, arguments map[string]any) (any, error)
}
