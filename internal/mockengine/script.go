package mockengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/periplon/metis/internal/apperr"
)

// ScriptTimeout is the wall-clock budget for the `script` strategy (spec
// §4.C). It runs untrusted archetype scripts on every mock invocation, so
// a runaway loop must be interrupted rather than left to run.
const ScriptTimeout = 500 * time.Millisecond

// generateScript runs cfg.Script as the body of a goja-sandboxed JS
// function, whose `return` value is the result, with `args` and `state`
// bound as globals. Only ScriptLang "js" (or empty, defaulting to
// js) is supported.
func (e *Engine) generateScript(ctx context.Context, cfg *MockConfig, args map[string]any) (any, error) {
	if cfg.ScriptLang != "" && cfg.ScriptLang != "js" {
		return nil, &apperr.Validation{Field: "script_lang", Reason: fmt.Sprintf("unsupported script_lang %q", cfg.ScriptLang)}
	}

	vm := goja.New()
	if err := vm.Set("args", args); err != nil {
		return nil, &apperr.ScriptError{Message: err.Error()}
	}
	if err := vm.Set("state", e.State.Snapshot()); err != nil {
		return nil, &apperr.ScriptError{Message: err.Error()}
	}

	timer := time.AfterFunc(ScriptTimeout, func() {
		vm.Interrupt(fmt.Sprintf("script exceeded %s", ScriptTimeout))
	})
	defer timer.Stop()

	script := "(function() {\n" + cfg.Script + "\n})()"
	val, err := vm.RunString(script)
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return nil, &apperr.ScriptTimeout{BudgetMs: int(ScriptTimeout / time.Millisecond)}
		}
		return nil, &apperr.ScriptError{Message: err.Error()}
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}

	exported := val.Export()
	// round-trip through JSON so exported goja values (maps with
	// interface{} keys, etc.) normalize to plain Go JSON types.
	data, merr := json.Marshal(exported)
	if merr != nil {
		return exported, nil
	}
	var normalized any
	if uerr := json.Unmarshal(data, &normalized); uerr != nil {
		return exported, nil
	}
	return normalized, nil
}
