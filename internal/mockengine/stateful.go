package mockengine

import (
	"context"
	"fmt"

	"github.com/periplon/metis/internal/apperr"
)

// generateStateful reads or writes a State Store key (spec §4.A/§4.C);
// the value for `set` may itself be produced by a nested generator.
func (e *Engine) generateStateful(ctx context.Context, cfg *MockConfig, args map[string]any) (any, error) {
	sc := cfg.Stateful
	if sc == nil || sc.Key == "" {
		return nil, &apperr.Validation{Field: "stateful", Reason: "key is required"}
	}

	switch sc.Operation {
	case StatefulGet:
		v, _ := e.State.Get(sc.Key)
		return v, nil
	case StatefulSet:
		var value any
		if sc.Value != nil {
			v, err := e.Generate(ctx, sc.Value, args)
			if err != nil {
				return nil, err
			}
			value = v
		}
		e.State.Set(sc.Key, value)
		return value, nil
	case StatefulIncrement:
		delta := sc.Delta
		if delta == 0 {
			delta = 1
		}
		n, err := e.State.Increment(sc.Key, delta)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, &apperr.Validation{Field: "stateful.operation", Reason: fmt.Sprintf("unknown operation %q", sc.Operation)}
	}
}
