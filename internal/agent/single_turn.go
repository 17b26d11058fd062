package agent

import (
	"context"

	"github.com/periplon/metis/internal/llm"
)

// runSingleTurn implements the SingleTurn contract (spec §4.F): Starting,
// Generating, streamed Text/Usage, then exactly one Complete or Error.
func (a *Agent) runSingleTurn(ctx context.Context, provider llm.Provider, messages []llm.Message, ch chan<- AgentChunk) {
	start := a.now()
	ch <- statusChunk(StatusStarting)
	ch <- statusChunk(StatusGenerating)

	result, err := runCompletion(ctx, provider, a.cfg.Model, messages, nil, ch)
	if err != nil {
		ch <- errorChunk(err.Error())
		return
	}

	ch <- completeChunk(AgentResponse{
		Output:          map[string]any{"content": result.Text},
		Iterations:      1,
		Usage:           &result.Usage,
		ExecutionTimeMs: a.now().Sub(start).Milliseconds(),
	})
}
