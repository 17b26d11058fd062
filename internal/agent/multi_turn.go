package agent

import (
	"context"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/llm"
	"github.com/periplon/metis/internal/memory"
)

// runMultiTurn implements the MultiTurn contract (spec §4.F): resolve the
// session, append the user turn, run a SingleTurn-shaped completion over
// [system] ++ strategy(history), then persist on success only.
func (a *Agent) runMultiTurn(ctx context.Context, provider llm.Provider, input, sessionID string, ch chan<- AgentChunk) {
	start := a.now()
	ch <- statusChunk(StatusStarting)

	if a.store == nil || sessionID == "" {
		ch <- errorChunk((&apperr.Validation{Field: "session_id", Reason: "multi_turn agents require a memory store and session id"}).Error())
		return
	}

	session, err := a.store.Load(ctx, sessionID)
	if err != nil {
		ch <- errorChunk(err.Error())
		return
	}

	var prior []memory.Message
	if session != nil {
		prior = session.Messages
	}
	history := append(append([]memory.Message{}, prior...), memory.Message{Role: "user", Content: input})
	pruned := memory.Apply(history, a.cfg.Strategy)

	messages := make([]llm.Message, 0, len(pruned)+1)
	if a.cfg.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: a.cfg.SystemPrompt})
	}
	for _, m := range pruned {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	ch <- statusChunk(StatusGenerating)
	result, err := runCompletion(ctx, provider, a.cfg.Model, messages, nil, ch)
	if err != nil {
		ch <- errorChunk(err.Error())
		return
	}

	if _, saveErr := a.store.GetOrCreate(ctx, sessionID, a.cfg.MemoryAgent); saveErr == nil {
		if saveErr := a.store.AddMessage(ctx, sessionID, memory.Message{Role: "user", Content: input}); saveErr == nil {
			_ = a.store.AddMessage(ctx, sessionID, memory.Message{Role: "assistant", Content: result.Text})
		}
	}

	ch <- completeChunk(AgentResponse{
		Output:          map[string]any{"content": result.Text},
		SessionID:       sessionID,
		Iterations:      1,
		Usage:           &result.Usage,
		ExecutionTimeMs: a.now().Sub(start).Milliseconds(),
	})
}
