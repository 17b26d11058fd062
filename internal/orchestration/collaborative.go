package orchestration

import (
	"context"
	"sync"

	"github.com/periplon/metis/internal/agent"
	"github.com/periplon/metis/internal/apperr"
)

type participantOutcome struct {
	name string
	resp *agent.AgentResponse
	err  error
}

// runCollaborative fans cfg.Participants out in parallel over the same
// input and merges their outputs per cfg.MergePolicy. There is no
// original_source/.../collaborative.rs in the retrieved pack (mod.rs
// declares the submodule but its file was filtered out of the example
// pack), so this is built directly from spec §4.G's textual contract:
// parallel execution, concat/vote/first merge, no ordering guarantee on
// interleaved intermediate chunks.
func (e *Engine) runCollaborative(ctx context.Context, cfg Config, input, sessionID string, ch chan<- agent.AgentChunk) {
	ch <- agent.AgentChunk{Type: agent.ChunkStatus, Status: agent.StatusStarting}

	if len(cfg.Participants) == 0 {
		emitError(ch, &apperr.Validation{Field: "participants", Reason: "collaborative orchestration requires at least one participant"})
		return
	}
	for _, name := range cfg.Participants {
		if _, ok := e.Get(name); !ok {
			emitError(ch, missingAgentErr(name))
			return
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]participantOutcome, len(cfg.Participants))

	var wg sync.WaitGroup
	var firstOnce sync.Once
	firstDone := make(chan participantOutcome, 1)

	for i, name := range cfg.Participants {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			a, _ := e.Get(name)
			resp, err := runAgentToCompletion(runCtx, a, input, sessionID+"/"+name, ch)
			out := participantOutcome{name: name, resp: resp, err: err}
			results[i] = out
			if err == nil && cfg.MergePolicy == MergeFirst {
				firstOnce.Do(func() { firstDone <- out })
			}
		}(i, name)
	}

	if cfg.MergePolicy == MergeFirst {
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case out := <-firstDone:
			cancel()
			ch <- agent.AgentChunk{
				Type: agent.ChunkComplete,
				Response: &agent.AgentResponse{
					Output:     map[string]any{"winner": out.name, "result": out.resp.Output},
					SessionID:  sessionID,
					Iterations: 1,
				},
			}
			return
		case <-done:
			emitError(ch, firstParticipantErr(results))
			return
		}
	}

	wg.Wait()

	var allToolCalls []agent.ToolCallResult
	merged := map[string]any{}
	var votes []string
	for _, out := range results {
		if out.err != nil {
			emitError(ch, out.err)
			return
		}
		merged[out.name] = out.resp.Output
		allToolCalls = append(allToolCalls, out.resp.ToolCalls...)
		votes = append(votes, promptFrom(out.resp.Output))
	}

	output := any(map[string]any{"results": merged})
	if cfg.MergePolicy == MergeVote {
		output = majority(votes)
	}

	ch <- agent.AgentChunk{
		Type: agent.ChunkComplete,
		Response: &agent.AgentResponse{
			Output:     output,
			ToolCalls:  allToolCalls,
			SessionID:  sessionID,
			Iterations: len(results),
		},
	}
}

// majority returns the most frequent value in votes, breaking ties by
// first occurrence.
func majority(votes []string) string {
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v]++
	}
	best, bestCount := "", -1
	for _, v := range votes {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func firstParticipantErr(results []participantOutcome) error {
	for _, out := range results {
		if out.err != nil {
			return out.err
		}
	}
	return &apperr.Validation{Field: "participants", Reason: "no participant produced a result"}
}
