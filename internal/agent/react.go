package agent

import (
	"context"
	"sync"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/llm"
	"github.com/periplon/metis/internal/tokenbudget"
)

// runReAct implements the ReAct loop (spec §4.F): build → complete →
// accumulate → if tool_calls, run tools in parallel and continue; else
// append and finish. Tool results are appended in call-index order
// regardless of completion order, to keep runs deterministic.
func (a *Agent) runReAct(ctx context.Context, provider llm.Provider, input, sessionID string, ch chan<- AgentChunk) {
	start := a.now()
	ch <- statusChunk(StatusStarting)

	messages := buildMessages(a.cfg.SystemPrompt, input)
	tools := make([]llm.Tool, len(a.cfg.Tools))
	for i, t := range a.cfg.Tools {
		tools[i] = llm.Tool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
	}

	var budget *tokenbudget.Budget
	if a.cfg.BudgetTokens > 0 {
		budget = tokenbudget.NewWithTotal(int64(a.cfg.BudgetTokens))
	}

	var reasoningSteps []string
	var allToolResults []ToolCallResult
	var totalUsage llm.Usage

	iteration := 0
	for {
		if a.cfg.MaxIterations > 0 && iteration >= a.cfg.MaxIterations {
			ch <- errorChunk((&apperr.MaxIterations{Limit: a.cfg.MaxIterations}).Error())
			return
		}
		if err := ctx.Err(); err != nil {
			ch <- errorChunk((&apperr.Cancelled{}).Error())
			return
		}

		ch <- statusChunk(StatusThinking)
		result, err := runCompletion(ctx, provider, a.cfg.Model, messages, tools, ch)
		if err != nil {
			ch <- errorChunk(err.Error())
			return
		}
		totalUsage.PromptTokens += result.Usage.PromptTokens
		totalUsage.CompletionTokens += result.Usage.CompletionTokens
		totalUsage.TotalTokens += result.Usage.TotalTokens

		if budget != nil && !budget.Consume(int64(result.Usage.TotalTokens)) {
			ch <- errorChunk((&apperr.BudgetExceeded{Used: budget.Consumed(), Limit: budget.Total()}).Error())
			return
		}

		messages = append(messages, assistantMessage(result))

		if result.FinishReason != "tool_calls" || len(result.ToolCalls) == 0 {
			ch <- completeChunk(AgentResponse{
				Output:          map[string]any{"content": result.Text},
				ToolCalls:       allToolResults,
				ReasoningSteps:  reasoningSteps,
				SessionID:       sessionID,
				Iterations:      iteration + 1,
				Usage:           &totalUsage,
				ExecutionTimeMs: a.now().Sub(start).Milliseconds(),
			})
			return
		}

		reasoningSteps = append(reasoningSteps, result.Text)
		toolResults := a.runToolCalls(ctx, result.ToolCalls, ch)
		allToolResults = append(allToolResults, toolResults...)
		messages = append(messages, toolResultMessages(toolResults)...)

		iteration++
	}
}

// runToolCalls executes every tool call from one assistant turn in
// parallel, then returns results ordered by original call index so
// downstream message construction stays deterministic across runs.
func (a *Agent) runToolCalls(ctx context.Context, calls []llm.ToolCall, ch chan<- AgentChunk) []ToolCallResult {
	results := make([]ToolCallResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		ch <- AgentChunk{Type: ChunkToolCall, ToolCallID: call.ID, ToolName: call.Name, Arguments: call.Arguments}

		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			started := a.now()
			var output any
			var err error
			if a.tools == nil {
				err = &apperr.ToolExecution{Name: call.Name, Reason: "no tool executor configured"}
			} else {
				output, err = a.tools.Execute(ctx, call.Name, call.Arguments)
			}
			r := ToolCallResult{
				ToolCallID:      call.ID,
				ToolName:        call.Name,
				Input:           call.Arguments,
				Output:          output,
				ExecutionTimeMs: a.now().Sub(started).Milliseconds(),
				Success:         err == nil,
			}
			if err != nil {
				r.Error = err.Error()
			}
			results[i] = r
		}(i, call)
	}
	wg.Wait()

	for _, r := range results {
		ch <- AgentChunk{
			Type:       ChunkToolResult,
			ToolCallID: r.ToolCallID,
			ToolName:   r.ToolName,
			Result:     r.Output,
			Success:    r.Success,
			Error:      r.Error,
		}
	}
	return results
}

func assistantMessage(result completion) llm.Message {
	if len(result.ToolCalls) == 0 {
		return llm.Message{Role: "assistant", Content: result.Text}
	}
	blocks := make([]map[string]any, 0, len(result.ToolCalls)+1)
	if result.Text != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": result.Text})
	}
	for _, tc := range result.ToolCalls {
		blocks = append(blocks, map[string]any{
			"type":      "tool_use",
			"id":        tc.ID,
			"name":      tc.Name,
			"arguments": tc.Arguments,
		})
	}
	return llm.Message{Role: "assistant", Content: blocks}
}

func toolResultMessages(results []ToolCallResult) []llm.Message {
	out := make([]llm.Message, 0, len(results))
	for _, r := range results {
		content := r.Output
		if r.Error != "" {
			content = map[string]any{"error": r.Error}
		}
		out = append(out, llm.Message{
			Role:    "tool",
			Content: map[string]any{"tool_call_id": r.ToolCallID, "name": r.ToolName, "content": content},
		})
	}
	return out
}
