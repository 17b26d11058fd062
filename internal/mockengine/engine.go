package mockengine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/corestate"
)

// LLMCaller is the narrow capability the `llm` strategy needs from the
// LLM Provider Abstraction (spec §4.D); implemented by internal/llm's
// registry without creating an import cycle.
type LLMCaller interface {
	CompleteText(ctx context.Context, providerKey, model, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// DataLakeStore is the narrow capability the `data_lake_crud` strategy
// needs from the Persistence Core (spec §4.J's DataRecord table).
type DataLakeStore interface {
	Create(ctx context.Context, lake, schemaName string, data map[string]any) (map[string]any, error)
	ReadByID(ctx context.Context, lake, id string) (map[string]any, error)
	ReadAll(ctx context.Context, lake string, limit, offset int) ([]map[string]any, error)
	ReadFilter(ctx context.Context, lake string, filter map[string]any) ([]map[string]any, error)
	Update(ctx context.Context, lake, id string, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, lake, id string) error
}

// Engine dispatches MockConfig.Strategy to the matching generator. Engine
// owns the shared process-wide State Store (§4.A), the templating/
// scripting sandboxes (§4.C), and references to the LLM and persistence
// layers for the `llm`/`database`/`data_lake_crud` strategies.
type Engine struct {
	State    *corestate.Store
	LLM      LLMCaller
	DataLake DataLakeStore
	DB       *sql.DB
	goqu     *goqu.Database

	templates *templateCache
}

// New creates an Engine. db may be nil if the `database` strategy is
// never used by the configured archetypes.
func New(state *corestate.Store, llmCaller LLMCaller, dataLake DataLakeStore, db *sql.DB) *Engine {
	e := &Engine{State: state, LLM: llmCaller, DataLake: dataLake, DB: db, templates: newTemplateCache()}
	if db != nil {
		e.goqu = goqu.New("default", db)
	}
	return e
}

// Generate is the Mock Strategy Engine's single public contract (spec
// §4.C). It never panics: any generator failure surfaces as a typed
// error, and a panic inside a generator (e.g. from a malformed regex or
// template) is recovered and converted to MockOutputInvalid.
func (e *Engine) Generate(ctx context.Context, cfg *MockConfig, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apperr.MockOutputInvalid{Strategy: string(cfg.Strategy), Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if args == nil {
		args = map[string]any{}
	}

	switch cfg.Strategy {
	case StrategyStatic:
		result, err = e.generateStatic(cfg)
	case StrategyTemplate:
		result, err = e.generateTemplate(cfg, args)
	case StrategyRandom:
		result, err = e.generateRandom(cfg)
	case StrategyPattern:
		result, err = e.generatePattern(cfg)
	case StrategyFile:
		result, err = e.generateFile(cfg)
	case StrategyStateful:
		result, err = e.generateStateful(ctx, cfg, args)
	case StrategyScript:
		result, err = e.generateScript(ctx, cfg, args)
	case StrategyLLM:
		result, err = e.generateLLM(ctx, cfg, args)
	case StrategyDatabase:
		result, err = e.generateDatabase(ctx, cfg, args)
	case StrategyDataLake:
		result, err = e.generateDataLake(ctx, cfg, args)
	default:
		return nil, &apperr.Validation{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", cfg.Strategy)}
	}
	if err != nil {
		return nil, err
	}

	if len(cfg.OutputSchema) > 0 {
		if verr := validateAgainstSchema(result, cfg.OutputSchema); verr != nil {
			return nil, &apperr.MockOutputInvalid{Strategy: string(cfg.Strategy), Reason: verr.Error()}
		}
	}
	return result, nil
}
