package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet-4-5-20250929", DialectAnthropic},
		{"gpt-4o", DialectOpenAI},
		{"o1-preview", DialectOpenAI},
		{"o3-mini", DialectOpenAI},
		{"kimi-k2", DialectOpenAI},
		{"gemini-2.5-pro", DialectOpenAI},
		{"minimax-m1", DialectOpenAI},
		{"mystery-model", DialectAnthropic},
	}
	for _, tt := range tests {
		if got := DetectDialect(tt.model); got != tt.want {
			t.Errorf("DetectDialect(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestMessageJSONRoundtrip(t *testing.T) {
	msgs := []Message{
		Text(RoleUser, "plain text"),
		{
			Role: RoleAssistant,
			Blocks: []Block{
				TextBlock{Text: "let me check"},
				ToolUseBlock{ID: "tool_1", Name: "shell", Input: map[string]any{"command": "echo hi"}},
			},
		},
		{
			Role: RoleUser,
			Blocks: []Block{
				ToolResultBlock{ToolUseID: "tool_1", Content: "hi", IsError: false},
			},
		},
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back []Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(msgs, back) {
		t.Errorf("roundtrip mismatch:\n in: %#v\nout: %#v", msgs, back)
	}
}

func TestAnthropicSendMessage(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"content": [
				{"type": "text", "text": "Checking."},
				{"type": "tool_use", "id": "tool_1", "name": "shell", "input": {"command": "ls"}},
				{"type": "text", "text": "One moment."}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 34}
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", WithAnthropicBaseURL(srv.URL))
	resp, err := p.SendMessage(context.Background(), Request{
		System: "be careful",
		Messages: []Message{
			Text(RoleUser, "hello"),
			{Role: RoleAssistant, Blocks: []Block{
				TextBlock{Text: "prior"},
				ToolUseBlock{ID: "t0", Name: "shell", Input: map[string]any{"command": "pwd"}},
			}},
			{Role: RoleUser, Blocks: []Block{
				ToolResultBlock{ToolUseID: "t0", Content: "/tmp", IsError: true},
			}},
		},
		Tools: []ToolSchema{{Name: "shell", Description: "run", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// Text blocks concatenate with newline separators.
	if resp.Text != "Checking.\nOne moment." {
		t.Errorf("Text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tool_1" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Input["command"] != "ls" {
		t.Errorf("tool input = %v", resp.ToolCalls[0].Input)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 34 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	// Wire shape: system prompt top-level, blocks sent as-is.
	if captured["system"] != "be careful" {
		t.Errorf("system = %v", captured["system"])
	}
	msgs := captured["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("wire messages = %d, want 3", len(msgs))
	}
	toolResultMsg := msgs[2].(map[string]any)
	blocks := toolResultMsg["content"].([]any)
	block := blocks[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "t0" || block["is_error"] != true {
		t.Errorf("tool_result block = %v", block)
	}
}

func TestOpenAITranslation(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"choices": [{
				"message": {
					"content": null,
					"tool_calls": [{
						"id": "call_9", "type": "function",
						"function": {"name": "shell", "arguments": "{\"command\":\"date\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "k", srv.URL, "gpt-4o")
	resp, err := p.SendMessage(context.Background(), Request{
		System: "sys prompt",
		Messages: []Message{
			Text(RoleUser, "hi"),
			{Role: RoleAssistant, Blocks: []Block{
				TextBlock{Text: "running now"},
				ToolUseBlock{ID: "call_1", Name: "shell", Input: map[string]any{"command": "ls"}},
			}},
			{Role: RoleUser, Blocks: []Block{
				ToolResultBlock{ToolUseID: "call_1", Content: "file.txt", IsError: false},
				ToolResultBlock{ToolUseID: "call_2", Content: "boom", IsError: true},
			}},
		},
		Tools: []ToolSchema{{Name: "shell", Description: "run", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Input["command"] != "date" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.Text != "" {
		t.Errorf("Text = %q, want empty for null content", resp.Text)
	}

	msgs := captured["messages"].([]any)
	// system + user + assistant + 2 tool messages
	if len(msgs) != 5 {
		t.Fatalf("wire messages = %d, want 5: %v", len(msgs), msgs)
	}
	if m := msgs[0].(map[string]any); m["role"] != "system" || m["content"] != "sys prompt" {
		t.Errorf("system message = %v", m)
	}
	asst := msgs[2].(map[string]any)
	if asst["content"] != "running now" {
		t.Errorf("assistant content = %v", asst["content"])
	}
	calls := asst["tool_calls"].([]any)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "shell" {
		t.Errorf("tool_call function = %v", fn)
	}
	if _, isString := fn["arguments"].(string); !isString {
		t.Errorf("arguments not a JSON string: %T", fn["arguments"])
	}
	tool1 := msgs[3].(map[string]any)
	if tool1["role"] != "tool" || tool1["tool_call_id"] != "call_1" || tool1["content"] != "file.txt" {
		t.Errorf("tool message 1 = %v", tool1)
	}
	tool2 := msgs[4].(map[string]any)
	if tool2["content"] != "ERROR: boom" {
		t.Errorf("error tool message content = %v, want ERROR: prefix", tool2["content"])
	}

	tools := captured["tools"].([]any)
	tdef := tools[0].(map[string]any)
	if tdef["type"] != "function" {
		t.Errorf("tool def = %v", tdef)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithAnthropicBaseURL(srv.URL))
	p.retryConfig = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}

	resp, err := p.SendMessage(context.Background(), Request{Messages: []Message{Text(RoleUser, "hi")}})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Text != "ok" || attempts != 3 {
		t.Errorf("Text=%q attempts=%d", resp.Text, attempts)
	}
}

func TestNoRetryOnBadRequest(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"bad"}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "k", srv.URL, "gpt-4o")
	p.retryConfig = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}

	_, err := p.SendMessage(context.Background(), Request{Messages: []Message{Text(RoleUser, "hi")}})
	if err == nil {
		t.Fatal("want error on 400")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 4xx)", attempts)
	}
}
