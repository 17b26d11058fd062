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

	"github.com/periplon/metis/internal/service"
)

// DefaultGeminiBaseURL is Google's Generative Language API host. Gemini's
// wire format (contents/parts, functionCall/functionResponse) differs
// enough from the OpenAI shape that it gets its own request/response
// types rather than reusing OpenAIProvider.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider speaks the native Google Generative Language API.
type GeminiProvider struct {
	Model   string
	BaseURL string
	APIKey  string
	client  *klient.Client
}

// NewGemini builds a Gemini provider authenticated with an AI Studio API
// key (see https://aistudio.google.com/apikey).
func NewGemini(apiKey, model, baseURL, proxy string, insecureSkipVerify bool) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini provider requires an api_key")
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	opts := []klient.OptionClientFn{
		klient.WithBaseURL(baseURL),
		klient.WithDisableBaseURLCheck(true),
		klient.WithLogger(slog.Default()),
		klient.WithHeaderSet(http.Header{
			"Content-Type":   []string{"application/json"},
			"x-goog-api-key": []string{apiKey},
		}),
	}
	if proxy != "" {
		opts = append(opts, klient.WithProxy(proxy))
	}
	if insecureSkipVerify {
		opts = append(opts, klient.WithInsecureSkipVerify(true))
	}

	client, err := klient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return &GeminiProvider{Model: model, BaseURL: baseURL, APIKey: apiKey, client: client}, nil
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResult `json:"functionResponse,omitempty"`
	ThoughtSignature string                `json:"thoughtSignature,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *geminiError         `json:"error,omitempty"`
}

func (p *GeminiProvider) Complete(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	if model == "" {
		model = p.Model
	}

	jsonData, err := json.Marshal(p.buildRequest(messages, tools))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	var result geminiResponse
	var headers http.Header
	if err := p.client.Do(req, func(r *http.Response) error {
		headers = r.Header
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &result)
	}); err != nil {
		return nil, err
	}

	return parseGeminiResponse(&result, headers)
}

func parseGeminiResponse(result *geminiResponse, headers http.Header) (*Response, error) {
	if result.Error != nil {
		return &Response{
			Content:  fmt.Sprintf("error from gemini: %s (code %d, status %s)", result.Error.Message, result.Error.Code, result.Error.Status),
			Finished: true,
			Header:   headers,
		}, nil
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates from gemini")
	}

	cand := result.Candidates[0]
	resp := &Response{Finished: true, Header: headers}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		}
	}
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				resp.Content += part.Text
			}
			if part.FunctionCall != nil {
				resp.Finished = false
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					Name:             part.FunctionCall.Name,
					Arguments:        part.FunctionCall.Args,
					ThoughtSignature: part.ThoughtSignature,
				})
			}
		}
	}
	return resp, nil
}

// CompleteStream wraps streamGenerateContent's SSE endpoint. Gemini's SSE
// frames are whole geminiResponse objects (not incremental deltas the way
// OpenAI/Anthropic are), so each parsed frame maps directly to one chunk.
func (p *GeminiProvider) CompleteStream(ctx context.Context, model string, messages []Message, tools []Tool) (<-chan StreamChunk, http.Header, error) {
	if model == "" {
		model = p.Model
	}

	jsonData, err := json.Marshal(p.buildRequest(messages, tools))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewBuffer(jsonData))
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
		return nil, nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(body))
	}

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var frame geminiResponse
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				ch <- StreamChunk{Error: fmt.Errorf("parse SSE frame: %w", err)}
				return
			}
			if frame.Error != nil {
				ch <- StreamChunk{Error: fmt.Errorf("gemini error: %s", frame.Error.Message)}
				return
			}
			if len(frame.Candidates) == 0 {
				continue
			}
			cand := frame.Candidates[0]
			chunk := StreamChunk{FinishReason: cand.FinishReason}
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if part.Text != "" {
						chunk.Content += part.Text
					}
					if part.FunctionCall != nil {
						chunk.ToolCalls = append(chunk.ToolCalls, ToolCall{
							Name:             part.FunctionCall.Name,
							Arguments:        part.FunctionCall.Args,
							ThoughtSignature: part.ThoughtSignature,
						})
					}
				}
			}
			if frame.UsageMetadata != nil {
				chunk.Usage = &Usage{
					PromptTokens:     frame.UsageMetadata.PromptTokenCount,
					CompletionTokens: frame.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      frame.UsageMetadata.TotalTokenCount,
				}
			}
			ch <- chunk
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamChunk{Error: fmt.Errorf("stream read error: %w", err)}
		}
	}()

	return ch, resp.Header, nil
}

func (p *GeminiProvider) buildRequest(messages []Message, tools []Tool) *geminiRequest {
	req := &geminiRequest{}

	if len(tools) > 0 {
		decls := make([]geminiFunctionDecl, len(tools))
		for i, tool := range tools {
			decls[i] = geminiFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  service.SanitizeSchema(tool.InputSchema),
			}
		}
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	for _, msg := range messages {
		text, _ := msg.Content.(string)
		switch msg.Role {
		case "system":
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: text}}}
		case "assistant":
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}})
		case "tool":
			req.Contents = append(req.Contents, geminiContent{Role: "function", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResult{Response: map[string]any{"result": text}},
			}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})
		}
	}
	return req
}
