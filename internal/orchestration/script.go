package orchestration

import (
	"time"

	"github.com/dop251/goja"
)

// scriptTimeout bounds condition/input_transform evaluation, the same
// interrupt-after-deadline shape as internal/mockengine/script.go's
// ScriptTimeout.
const scriptTimeout = 200 * time.Millisecond

// evalScript runs a JS expression with results/input bound as globals and
// returns its value, reusing the ReAct-surrounding config language
// (JavaScript via goja) in place of sequential.rs's rhai, since goja is
// the scripting engine this codebase already ships everywhere else.
func evalScript(script string, results map[string]any, input any) (any, error) {
	vm := goja.New()
	if err := vm.Set("results", results); err != nil {
		return nil, err
	}
	if err := vm.Set("input", input); err != nil {
		return nil, err
	}

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("orchestration script timed out")
	})
	defer timer.Stop()

	v, err := vm.RunString(script)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// evalCondition runs script and coerces its result to bool.
func evalCondition(script string, results map[string]any, input any) (bool, error) {
	v, err := evalScript(script, results, input)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// evalTransform runs script and coerces its result to a string prompt,
// stringifying non-string results.
func evalTransform(script string, results map[string]any, input any) (string, error) {
	v, err := evalScript(script, results, input)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return toJSONString(v), nil
}
