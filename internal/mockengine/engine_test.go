package mockengine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/periplon/metis/internal/corestate"
)

func newTestEngine() *Engine {
	return New(corestate.New(), nil, nil, nil)
}

func TestGenerateStatic(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyStatic, StaticResponse: map[string]any{"ok": true}}
	out, err := e.Generate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestGenerateStatefulSetGetIncrement(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	setCfg := &MockConfig{Strategy: StrategyStateful, Stateful: &StatefulConfig{
		Key:       "counter",
		Operation: StatefulSet,
		Value:     &MockConfig{Strategy: StrategyStatic, StaticResponse: float64(10)},
	}}
	if _, err := e.Generate(ctx, setCfg, nil); err != nil {
		t.Fatalf("set: %v", err)
	}

	getCfg := &MockConfig{Strategy: StrategyStateful, Stateful: &StatefulConfig{Key: "counter", Operation: StatefulGet}}
	out, err := e.Generate(ctx, getCfg, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != float64(10) {
		t.Fatalf("expected 10, got %#v", out)
	}

	incCfg := &MockConfig{Strategy: StrategyStateful, Stateful: &StatefulConfig{Key: "counter", Operation: StatefulIncrement, Delta: 5}}
	out, err = e.Generate(ctx, incCfg, nil)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if out != int64(15) {
		t.Fatalf("expected 15, got %#v", out)
	}
}

func TestGenerateStatefulRequiresKey(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyStateful, Stateful: &StatefulConfig{Operation: StatefulGet}}
	if _, err := e.Generate(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestGeneratePatternMatchesCompiled(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyPattern, Pattern: `[A-Z]{2}-\d{3}`}
	out, err := e.Generate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := out.(string)
	if !ok || len(s) != 6 {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestGenerateTemplate(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyTemplate, Template: "hello {{ .args.name }}"}
	out, err := e.Generate(context.Background(), cfg, map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestGenerateRandomKnownType(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyRandom, FakerType: "email"}
	out, err := e.Generate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, ok := out.(string); !ok || s == "" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestGenerateRandomUnknownType(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyRandom, FakerType: "not_a_real_type"}
	if _, err := e.Generate(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown faker_type")
	}
}

func TestGenerateScriptReturnsValue(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyScript, Script: "return args.a + args.b;"}
	out, err := e.Generate(context.Background(), cfg, map[string]any{"a": float64(2), "b": float64(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != float64(5) {
		t.Fatalf("expected 5, got %#v", out)
	}
}

func TestGenerateScriptTimeout(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyScript, Script: "while (true) {}"}
	_, err := e.Generate(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestGenerateFileNdjsonRoundRobin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.ndjson")
	lines := []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}
	if err := os.WriteFile(path, []byte(lines[0]+"\n"+lines[1]+"\n"+lines[2]+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine()
	cfg := &MockConfig{Strategy: StrategyFile, File: &FileConfig{Path: path, Format: "ndjson", Selection: SelectionRoundRobin}}

	var ids []float64
	for i := 0; i < 3; i++ {
		out, err := e.Generate(context.Background(), cfg, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		m := out.(map[string]any)
		ids = append(ids, m["id"].(float64))
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("expected round-robin 1,2,3, got %v", ids)
	}
}

func TestGenerateOutputSchemaValidation(t *testing.T) {
	e := newTestEngine()
	schema := map[string]any{
		"type":     "object",
		"required": []any{"ok"},
		"properties": map[string]any{
			"ok": map[string]any{"type": "boolean"},
		},
	}
	cfg := &MockConfig{Strategy: StrategyStatic, StaticResponse: map[string]any{"wrong": 1}, OutputSchema: schema}
	if _, err := e.Generate(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected schema validation error")
	}

	cfg.StaticResponse = map[string]any{"ok": true}
	if _, err := e.Generate(context.Background(), cfg, nil); err != nil {
		t.Fatalf("unexpected error for valid output: %v", err)
	}
}

func TestGenerateUnknownStrategy(t *testing.T) {
	e := newTestEngine()
	cfg := &MockConfig{Strategy: "bogus"}
	if _, err := e.Generate(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestValidateAgainstSchemaArray(t *testing.T) {
	schema := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	var arr []any
	if err := json.Unmarshal([]byte(`["a","b"]`), &arr); err != nil {
		t.Fatal(err)
	}
	if err := validateAgainstSchema(arr, schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var bad []any
	if err := json.Unmarshal([]byte(`["a", 1]`), &bad); err != nil {
		t.Fatal(err)
	}
	if err := validateAgainstSchema(bad, schema); err == nil {
		t.Fatal("expected error for mismatched item type")
	}
}
