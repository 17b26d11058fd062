package mcp

import (
	"context"
	"encoding/json"

	"github.com/periplon/metis/internal/agent"
)

// AgentPort is the subset of internal/agentport.Port's contract this
// package needs (spec §4.K's AgentPort.execute).
type AgentPort interface {
	Execute(ctx context.Context, name, input, sessionID string) (<-chan agent.AgentChunk, error)
}

type agentsExecuteParams struct {
	Name      string `json:"name"`
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

// handleAgentsExecute runs name to completion synchronously, discarding
// intermediate chunks and returning only the terminal one as the JSON-RPC
// result — the blocking counterpart to Handle's streaming path below, for
// callers that POST to the plain (non-SSE) JSON-RPC endpoint.
func (s *MCP) handleAgentsExecute(ctx context.Context, id any, params json.RawMessage) JSONRPCResponse {
	if s.Agents == nil {
		return s.createErrorResponse(id, CodeInternalError, "agents/execute is not configured on this server")
	}

	var p agentsExecuteParams
	if err := decodeJSON(params, &p); err != nil || p.Name == "" {
		return s.createErrorResponse(id, CodeInvalidParams, "Invalid params")
	}

	stream, err := s.Agents.Execute(ctx, p.Name, p.Input, p.SessionID)
	if err != nil {
		return s.createErrorResponse(id, CodeInvalidParams, err.Error())
	}

	var last *agent.AgentChunk
	for chunk := range stream {
		c := chunk
		last = &c
	}
	if last == nil {
		return s.createErrorResponse(id, CodeInternalError, "agent stream closed without a terminal chunk")
	}
	if last.Type == agent.ChunkError {
		return s.createErrorResponse(id, CodeInternalError, last.Error)
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: last}
}

// Handle implements internal/session.Handler, streaming every chunk
// agents/execute produces (rather than only the terminal one) as a
// JSON-RPC-enveloped emit, for callers driving this through an SSE
// session per spec §4.I ("agents/execute (streaming)").
func (s *MCP) Handle(ctx context.Context, sessionID string, msg json.RawMessage, emit func(json.RawMessage)) {
	var req JSONRPCRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		emit(mustMarshal(s.createErrorResponse(nil, CodeParseError, "Parse error")))
		return
	}

	if req.ID == nil {
		s.handleNotification(req.Method, req.Params)
		return
	}

	if req.Method != "agents/execute" {
		emit(mustMarshal(s.handleRequest(ctx, req)))
		return
	}

	if s.Agents == nil {
		emit(mustMarshal(s.createErrorResponse(req.ID, CodeInternalError, "agents/execute is not configured on this server")))
		return
	}

	var p agentsExecuteParams
	if err := decodeJSON(req.Params, &p); err != nil || p.Name == "" {
		emit(mustMarshal(s.createErrorResponse(req.ID, CodeInvalidParams, "Invalid params")))
		return
	}
	if p.SessionID == "" {
		p.SessionID = sessionID
	}

	stream, err := s.Agents.Execute(ctx, p.Name, p.Input, p.SessionID)
	if err != nil {
		emit(mustMarshal(s.createErrorResponse(req.ID, CodeInvalidParams, err.Error())))
		return
	}

	for chunk := range stream {
		emit(mustMarshal(JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: chunk}))
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal encoding error"}}`)
	}
	return data
}
