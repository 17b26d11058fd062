package mockengine

import (
	"context"
	"fmt"

	"github.com/periplon/metis/internal/apperr"
)

// generateLLM delegates completion to the configured LLM Provider
// Abstraction (spec §4.D). The user prompt is the `prompt` argument and the
// system prompt is cfg.LLM.SystemPrompt, both used as given: neither is
// rendered as a template. A missing `prompt` argument is a Validation error.
func (e *Engine) generateLLM(ctx context.Context, cfg *MockConfig, args map[string]any) (any, error) {
	if e.LLM == nil {
		return nil, &apperr.Validation{Field: "llm", Reason: "no LLM provider configured"}
	}
	lc := cfg.LLM
	if lc == nil || lc.Provider == "" {
		return nil, &apperr.Validation{Field: "llm.provider", Reason: "provider is required"}
	}

	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return nil, &apperr.Validation{Field: "args.prompt", Reason: "prompt argument is required"}
	}

	temperature := lc.Temperature
	maxTokens := lc.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	out, err := e.LLM.CompleteText(ctx, lc.Provider, lc.Model, lc.SystemPrompt, prompt, temperature, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("llm strategy: %w", err)
	}
	return out, nil
}
