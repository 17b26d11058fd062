// Package registry bridges the Persistence Core's resource/tool/prompt
// archetypes (spec §4.J) onto the Protocol Dispatcher's handler
// collections (spec §4.I, pkg/mcp), synthesizing every handler's output
// through the Mock Strategy Engine (spec §4.C) per §4.K: "All handlers
// consult the Mock Strategy Engine for value synthesis; none contain
// business logic."
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/periplon/metis/internal/mockengine"
	"github.com/periplon/metis/internal/persistence"
	"github.com/periplon/metis/pkg/mcp"
)

// toolDefinition is the `tool` archetype's Definition payload.
type toolDefinition struct {
	Description string               `json:"description"`
	InputSchema map[string]any       `json:"input_schema,omitempty"`
	Mock        mockengine.MockConfig `json:"mock"`
}

// resourceDefinition is the `resource` archetype's Definition payload.
type resourceDefinition struct {
	URI         string               `json:"uri"`
	Name        string               `json:"name,omitempty"`
	Description string               `json:"description,omitempty"`
	MimeType    string               `json:"mime_type,omitempty"`
	Mock        mockengine.MockConfig `json:"mock"`
}

// promptDefinition is the `prompt` archetype's Definition payload. Mock's
// synthesized output is rendered as the prompt's single user message
// (render-as-template is the common case; richer multi-message prompts
// can return {"messages":[...]} from a script strategy instead).
type promptDefinition struct {
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Arguments   []mcp.PromptArg    `json:"arguments,omitempty"`
	Mock        mockengine.MockConfig `json:"mock"`
}

// Sync rebuilds server.Tools/Resources/Prompts from the current live
// archetype set, replacing whatever was registered before. Called once at
// startup and again after every archetype CRUD write so the Protocol
// Dispatcher always reflects the Persistence Core's current state.
func Sync(ctx context.Context, server *mcp.MCP, engine *mockengine.Engine, store *persistence.Store) error {
	if err := syncTools(ctx, server, engine, store); err != nil {
		return fmt.Errorf("registry: sync tools: %w", err)
	}
	if err := syncResources(ctx, server, engine, store); err != nil {
		return fmt.Errorf("registry: sync resources: %w", err)
	}
	if err := syncPrompts(ctx, server, engine, store); err != nil {
		return fmt.Errorf("registry: sync prompts: %w", err)
	}
	return nil
}

func syncTools(ctx context.Context, server *mcp.MCP, engine *mockengine.Engine, store *persistence.Store) error {
	archetypes, err := store.ListArchetypes(ctx, persistence.KindTool)
	if err != nil {
		return err
	}

	server.Tools.Reset()
	for _, a := range archetypes {
		var def toolDefinition
		if err := json.Unmarshal(a.Definition, &def); err != nil {
			return fmt.Errorf("tool %q: invalid definition: %w", a.Name, err)
		}
		mock := def.Mock
		server.Tools.Add(mcp.Tool{
			Name:        a.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(args map[string]any) (any, error) {
			return engine.Generate(ctx, &mock, args)
		})
	}
	return nil
}

func syncResources(ctx context.Context, server *mcp.MCP, engine *mockengine.Engine, store *persistence.Store) error {
	archetypes, err := store.ListArchetypes(ctx, persistence.KindResource)
	if err != nil {
		return err
	}

	server.Resources.Reset()
	for _, a := range archetypes {
		var def resourceDefinition
		if err := json.Unmarshal(a.Definition, &def); err != nil {
			return fmt.Errorf("resource %q: invalid definition: %w", a.Name, err)
		}
		name := def.Name
		if name == "" {
			name = a.Name
		}
		mock := def.Mock
		server.Resources.Add(mcp.Resource{
			URI:         def.URI,
			Name:        name,
			Description: def.Description,
			MimeType:    def.MimeType,
		}, func(uri string) (any, error) {
			return engine.Generate(ctx, &mock, map[string]any{"uri": uri})
		})
	}
	return nil
}

func syncPrompts(ctx context.Context, server *mcp.MCP, engine *mockengine.Engine, store *persistence.Store) error {
	archetypes, err := store.ListArchetypes(ctx, persistence.KindPrompt)
	if err != nil {
		return err
	}

	server.Prompts.Reset()
	for _, a := range archetypes {
		var def promptDefinition
		if err := json.Unmarshal(a.Definition, &def); err != nil {
			return fmt.Errorf("prompt %q: invalid definition: %w", a.Name, err)
		}
		mock := def.Mock
		server.Prompts.Add(mcp.Prompt{
			Name:        a.Name,
			Title:       def.Title,
			Description: def.Description,
			Arguments:   def.Arguments,
		}, func(args map[string]string) (mcp.GetPromptResult, error) {
			genArgs := make(map[string]any, len(args))
			for k, v := range args {
				genArgs[k] = v
			}
			out, err := engine.Generate(ctx, &mock, genArgs)
			if err != nil {
				return mcp.GetPromptResult{}, err
			}

			// A script/static strategy may directly produce a full
			// GetPromptResult-shaped map; anything else becomes one
			// user-role text message.
			if structured, ok := asGetPromptResult(out); ok {
				return structured, nil
			}

			text := fmt.Sprint(out)
			if s, ok := out.(string); ok {
				text = s
			}
			return mcp.GetPromptResult{
				Description: def.Description,
				Messages: []mcp.PromptMessage{
					{Role: "user", Content: mcp.PromptContent{Type: "text", Text: text}},
				},
			}, nil
		})
	}
	return nil
}

// asGetPromptResult reinterprets a generator's map[string]any output as a
// mcp.GetPromptResult when it already has that shape (round-tripped
// through JSON, since generators produce generic any values).
func asGetPromptResult(out any) (mcp.GetPromptResult, bool) {
	m, ok := out.(map[string]any)
	if !ok {
		return mcp.GetPromptResult{}, false
	}
	if _, hasMessages := m["messages"]; !hasMessages {
		return mcp.GetPromptResult{}, false
	}
	data, err := json.Marshal(m)
	if err != nil {
		return mcp.GetPromptResult{}, false
	}
	var result mcp.GetPromptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return mcp.GetPromptResult{}, false
	}
	return result, true
}
