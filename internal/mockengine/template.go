package mockengine

import (
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/periplon/metis/internal/render"
)

// templateCache holds the sprig filter map built once and reused across
// every `template` strategy invocation; sprig.FuncMap() walks a sizeable
// reflect-based table on each call, so Engine builds it a single time.
type templateCache struct {
	once   sync.Once
	extras map[string]any
}

func newTemplateCache() *templateCache {
	return &templateCache{}
}

func (c *templateCache) funcs() map[string]any {
	c.once.Do(func() {
		c.extras = map[string]any{}
		for name, fn := range sprig.GenericFuncMap() {
			c.extras[name] = fn
		}
		c.extras["now"] = func() string { return time.Now().UTC().Format(time.RFC3339) }
	})
	return c.extras
}

// generateTemplate renders cfg.Template as a Go text/template, with args
// exposed as `.args` and the sprig filter set plus the mock engine's state
// snapshot available to the template body (spec §4.C's Jinja-like
// substitution, expressed idiomatically via text/template since the
// teacher repo never carries a Jinja engine).
func (e *Engine) generateTemplate(cfg *MockConfig, args map[string]any) (any, error) {
	data := map[string]any{
		"args":  args,
		"state": e.State.Snapshot(),
	}
	out, err := render.ExecuteWithFuncs(cfg.Template, data, e.templates.funcs())
	if err != nil {
		return nil, err
	}
	return string(out), nil
}
