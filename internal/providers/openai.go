package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider speaks the function-call dialect used by OpenAI-compatible
// APIs (OpenAI, Moonshot, Gemini-compat endpoints, MiniMax, etc.). Canonical
// block messages are rewritten at this boundary:
//
//   - assistant tool-use blocks become tool_calls with JSON-string arguments
//   - each tool-result block becomes its own role="tool" message
//   - the system prompt becomes a leading system-role message
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	retryConfig  RetryConfig
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if name == "" {
		name = "openai"
	}
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
		retryConfig:  DefaultRetryConfig(),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) SendMessage(ctx context.Context, req Request) (*Response, error) {
	body := p.buildRequestBody(req)
	return RetryDo(ctx, p.retryConfig, func() (*Response, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
		}
		return p.parseResponse(&resp)
	})
}

func (p *OpenAIProvider) buildRequestBody(req Request) map[string]any {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var messages []map[string]any
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, translateMessage(m)...)
	}

	body := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.InputSchema,
				},
			})
		}
		body["tools"] = tools
	}
	return body
}

// translateMessage converts one canonical message into one or more
// function-call dialect messages.
func translateMessage(m Message) []map[string]any {
	if m.Blocks == nil {
		return []map[string]any{{"role": string(m.Role), "content": m.Content}}
	}

	switch m.Role {
	case RoleAssistant:
		var texts []string
		var toolCalls []map[string]any
		for _, b := range m.Blocks {
			switch blk := b.(type) {
			case TextBlock:
				texts = append(texts, blk.Text)
			case ToolUseBlock:
				input := blk.Input
				if input == nil {
					input = map[string]any{}
				}
				argsJSON, _ := json.Marshal(input)
				toolCalls = append(toolCalls, map[string]any{
					"id":   blk.ID,
					"type": "function",
					"function": map[string]any{
						"name":      blk.Name,
						"arguments": string(argsJSON),
					},
				})
			}
		}
		text := strings.Join(texts, "\n")
		msg := map[string]any{"role": "assistant"}
		if len(toolCalls) > 0 {
			msg["tool_calls"] = toolCalls
			if text != "" {
				msg["content"] = text
			} else {
				msg["content"] = nil
			}
		} else {
			msg["content"] = text
		}
		return []map[string]any{msg}

	default: // user
		var out []map[string]any
		var texts []string
		for _, b := range m.Blocks {
			switch blk := b.(type) {
			case TextBlock:
				texts = append(texts, blk.Text)
			case ToolResultBlock:
				content := blk.Content
				if blk.IsError {
					content = "ERROR: " + content
				}
				out = append(out, map[string]any{
					"role":         "tool",
					"tool_call_id": blk.ToolUseID,
					"content":      content,
				})
			}
		}
		if len(texts) > 0 {
			out = append(out, map[string]any{"role": "user", "content": strings.Join(texts, "\n")})
		}
		return out
	}
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body map[string]any) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(errBody)}
	}
	return resp.Body, nil
}

// --- wire types ---

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) parseResponse(resp *openAIResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", p.name)
	}
	choice := resp.Choices[0]

	out := &Response{
		StopReason:   choice.FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if choice.Message.Content != nil {
		out.Text = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		input := make(map[string]any)
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			input = map[string]any{}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return out, nil
}
