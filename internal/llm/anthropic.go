package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/worldline-go/klient"
)

const DefaultAnthropicBaseURL = "https://api.anthropic.com"

// AnthropicProvider speaks Anthropic's /v1/messages wire format.
type AnthropicProvider struct {
	APIKey string
	Model  string

	client *klient.Client
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Type       string                  `json:"type"`
	Error      anthropicError          `json:"error"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicError struct {
	Message string `json:"message"`
}

// NewAnthropic builds an Anthropic provider.
func NewAnthropic(apiKey, model, baseURL, proxy string, insecureSkipVerify bool) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}

	klientOpts := []klient.OptionClientFn{
		klient.WithBaseURL(baseURL),
		klient.WithLogger(slog.Default()),
		klient.WithHeaderSet(http.Header{
			"X-Api-Key":         []string{apiKey},
			"Anthropic-Version": []string{"2023-06-01"},
			"Content-Type":      []string{"application/json"},
		}),
	}
	if proxy != "" {
		klientOpts = append(klientOpts, klient.WithProxy(proxy))
	}
	if insecureSkipVerify {
		klientOpts = append(klientOpts, klient.WithInsecureSkipVerify(true))
	}

	client, err := klient.New(klientOpts...)
	if err != nil {
		return nil, err
	}
	return &AnthropicProvider{APIKey: apiKey, Model: model, client: client}, nil
}

func (p *AnthropicProvider) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	if model == "" {
		model = p.Model
	}

	jsonData, _ := json.Marshal(p.buildRequestBody(model, messages, tools))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	var result anthropicResponse
	var headers http.Header
	if err := p.client.Do(req, func(r *http.Response) error {
		headers = r.Header
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("decode response: %w (body: %s)", err, string(body))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	resp := &Response{Finished: result.StopReason != "tool_use", Header: headers}
	if result.Type == "error" {
		resp.Content = fmt.Sprintf("error from anthropic: %s", result.Error.Message)
		return resp, nil
	}

	resp.Usage = Usage{
		PromptTokens:     result.Usage.InputTokens,
		CompletionTokens: result.Usage.OutputTokens,
		TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
	}
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return resp, nil
}

type anthropicStreamEvent struct {
	Type         string                 `json:"type"`
	Delta        json.RawMessage        `json:"delta,omitempty"`
	ContentBlock *anthropicContentBlock `json:"content_block,omitempty"`
}

type anthropicTextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicToolInputDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type anthropicMessageDelta struct {
	StopReason string          `json:"stop_reason"`
	Usage      *anthropicUsage `json:"usage,omitempty"`
}

type anthropicMessageStartBody struct {
	Message *struct {
		Usage *anthropicUsage `json:"usage,omitempty"`
	} `json:"message,omitempty"`
}

func (p *AnthropicProvider) CompleteStream(ctx context.Context, model string, messages []Message, tools []Tool) (<-chan StreamChunk, http.Header, error) {
	if model == "" {
		model = p.Model
	}

	reqBody := p.buildRequestBody(model, messages, tools)
	reqBody["stream"] = true

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, err
	}

	resp, err := p.client.HTTP.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("streaming request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(body))
	}

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var currentToolID, currentToolName string
		var toolInputBuf strings.Builder
		var inputTokens, outputTokens int

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				ch <- StreamChunk{Error: fmt.Errorf("parse SSE event: %w", err)}
				return
			}

			switch event.Type {
			case "message_start":
				var msb anthropicMessageStartBody
				if json.Unmarshal([]byte(data), &msb) == nil && msb.Message != nil && msb.Message.Usage != nil {
					inputTokens = msb.Message.Usage.InputTokens
				}
			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					currentToolID = event.ContentBlock.ID
					currentToolName = event.ContentBlock.Name
					toolInputBuf.Reset()
				}
			case "content_block_delta":
				if len(event.Delta) == 0 {
					continue
				}
				var td anthropicTextDelta
				if json.Unmarshal(event.Delta, &td) == nil && td.Type == "text_delta" {
					ch <- StreamChunk{Content: td.Text}
					continue
				}
				var tid anthropicToolInputDelta
				if json.Unmarshal(event.Delta, &tid) == nil && tid.Type == "input_json_delta" {
					toolInputBuf.WriteString(tid.PartialJSON)
				}
			case "content_block_stop":
				if currentToolID != "" {
					var args map[string]any
					if toolInputBuf.Len() > 0 {
						_ = json.Unmarshal([]byte(toolInputBuf.String()), &args)
					}
					ch <- StreamChunk{ToolCalls: []ToolCall{{ID: currentToolID, Name: currentToolName, Arguments: args}}}
					currentToolID, currentToolName = "", ""
					toolInputBuf.Reset()
				}
			case "message_delta":
				if len(event.Delta) == 0 {
					continue
				}
				var md anthropicMessageDelta
				if json.Unmarshal(event.Delta, &md) == nil {
					if md.Usage != nil {
						outputTokens = md.Usage.OutputTokens
					}
					if md.StopReason != "" {
						reason := "stop"
						if md.StopReason == "tool_use" {
							reason = "tool_calls"
						}
						ch <- StreamChunk{FinishReason: reason}
					}
				}
			case "message_stop":
				ch <- StreamChunk{Usage: &Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: outputTokens,
					TotalTokens:      inputTokens + outputTokens,
				}}
				return
			case "error":
				var errMsg struct {
					Error anthropicError `json:"error"`
				}
				if json.Unmarshal([]byte(data), &errMsg) == nil {
					ch <- StreamChunk{Error: fmt.Errorf("anthropic error: %s", errMsg.Error.Message)}
				} else {
					ch <- StreamChunk{Error: fmt.Errorf("anthropic stream error: %s", data)}
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamChunk{Error: fmt.Errorf("stream read error: %w", err)}
		}
	}()

	return ch, resp.Header, nil
}

func (p *AnthropicProvider) buildRequestBody(model string, messages []Message, tools []Tool) map[string]any {
	anthropicTools := make([]map[string]any, len(tools))
	for i, tool := range tools {
		anthropicTools[i] = map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": tool.InputSchema,
		}
	}

	var systemPrompt string
	var filtered []Message
	for _, msg := range messages {
		if msg.Role == "system" {
			if s, ok := msg.Content.(string); ok {
				if systemPrompt != "" {
					systemPrompt += "\n"
				}
				systemPrompt += s
			}
			continue
		}
		filtered = append(filtered, msg)
	}

	body := map[string]any{"model": model, "max_tokens": 4096, "messages": filtered}
	if systemPrompt != "" {
		body["system"] = systemPrompt
	}
	if len(tools) > 0 {
		body["tools"] = anthropicTools
	}
	return body
}
