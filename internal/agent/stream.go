package agent

import (
	"context"
	"encoding/json"

	"github.com/periplon/metis/internal/llm"
)

// completion is the aggregated result of one provider turn, whether it
// arrived via true SSE streaming or a single non-streaming Complete call.
type completion struct {
	Text         string
	ToolCalls    []llm.ToolCall
	FinishReason string
	Usage        llm.Usage
}

// runCompletion drives one LLM turn, forwarding Text and Usage chunks to ch
// as they arrive, and returns the aggregated result for the caller (which
// decides whether a tool_calls finish reason means more looping).
func runCompletion(ctx context.Context, provider llm.Provider, model string, messages []llm.Message, tools []llm.Tool, ch chan<- AgentChunk) (completion, error) {
	streamer, ok := provider.(llm.StreamProvider)
	if !ok {
		return runCompletionOnce(ctx, provider, model, messages, tools, ch)
	}

	stream, _, err := streamer.CompleteStream(ctx, model, messages, tools)
	if err != nil {
		return completion{}, err
	}

	acc := llm.NewToolCallAccumulator()
	var result completion
	for chunk := range stream {
		if chunk.Error != nil {
			return completion{}, chunk.Error
		}
		if chunk.Content != "" {
			result.Text += chunk.Content
			ch <- textChunk(chunk.Content)
		}
		for i, tc := range chunk.ToolCalls {
			argsJSON := ""
			if tc.Arguments != nil {
				argsJSON = toolArgsFragment(tc.Arguments)
			}
			acc.Add(i, tc.ID, tc.Name, argsJSON)
		}
		if chunk.FinishReason != "" {
			result.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			result.Usage = *chunk.Usage
			ch <- usageChunk(result.Usage)
		}
	}
	result.ToolCalls = acc.Finalize()
	return result, nil
}

// runCompletionOnce is the fallback for providers implementing only
// Complete (e.g. Ollama, which the donor never gave a streaming path
// either): it emits the whole response as a single Text chunk.
func runCompletionOnce(ctx context.Context, provider llm.Provider, model string, messages []llm.Message, tools []llm.Tool, ch chan<- AgentChunk) (completion, error) {
	resp, err := provider.Complete(ctx, model, messages, tools)
	if err != nil {
		return completion{}, err
	}
	if resp.Content != "" {
		ch <- textChunk(resp.Content)
	}
	ch <- usageChunk(resp.Usage)

	finish := "stop"
	if len(resp.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return completion{
		Text:         resp.Content,
		ToolCalls:    resp.ToolCalls,
		FinishReason: finish,
		Usage:        resp.Usage,
	}, nil
}

// toolArgsFragment re-serializes already-parsed arguments back into a JSON
// fragment so they can flow through the streaming path's accumulator.
// runCompletionOnce does not use it: it returns resp.ToolCalls as-is.
func toolArgsFragment(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}
