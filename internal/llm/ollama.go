package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/worldline-go/klient"
)

const DefaultOllamaBaseURL = "http://localhost:11434/api/chat"

// OllamaProvider speaks Ollama's local /api/chat wire format, which is
// OpenAI-tool-shaped but wraps the request/response envelope differently
// and has no SSE streaming mode for tool calls, so it only implements
// Provider, not StreamProvider.
type OllamaProvider struct {
	Model   string
	BaseURL string

	client *klient.Client
}

// NewOllama builds a provider targeting a local or remote Ollama daemon.
func NewOllama(model, baseURL string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	client, err := klient.New(
		klient.WithBaseURL(baseURL),
		klient.WithHeaderSet(http.Header{"Content-Type": []string{"application/json"}}),
		klient.WithDisableRetry(true),
	)
	if err != nil {
		return nil, err
	}
	return &OllamaProvider{Model: model, BaseURL: baseURL, client: client}, nil
}

type ollamaToolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type ollamaResponse struct {
	Message struct {
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
}

func (p *OllamaProvider) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	if model == "" {
		model = p.Model
	}

	ollamaTools := make([]map[string]any, len(tools))
	for i, tool := range tools {
		ollamaTools[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.InputSchema,
			},
		}
	}

	reqBody := map[string]any{"model": model, "messages": messages, "stream": false}
	if len(tools) > 0 {
		reqBody["tools"] = ollamaTools
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	var result ollamaResponse
	if err := p.client.Do(req, func(r *http.Response) error {
		return json.NewDecoder(r.Body).Decode(&result)
	}); err != nil {
		return nil, err
	}

	resp := &Response{Content: result.Message.Content, Finished: len(result.Message.ToolCalls) == 0}
	for i, tc := range result.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: fmt.Sprintf("call_%d", i), Name: tc.Function.Name, Arguments: args})
	}
	return resp, nil
}
