// Package providers abstracts LLM wire protocols behind a canonical message
// model. The agent loop only ever sees canonical messages; each adapter
// translates them to its provider's dialect and back.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

// Role of a canonical message. The first message of a conversation is always
// RoleUser; tool results travel in a user message following the assistant
// message that requested them.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is the closed set of content block variants: TextBlock,
// ToolUseBlock, ToolResultBlock. The type tag is only observed at the
// provider translation boundary.
type Block interface {
	blockType() string
}

// TextBlock carries an opaque UTF-8 string.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a tool invocation requested by the assistant. ID is opaque
// and unique within the turn.
type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResultBlock answers a ToolUseBlock, matched by ToolUseID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) blockType() string       { return "text" }
func (ToolUseBlock) blockType() string    { return "tool_use" }
func (ToolResultBlock) blockType() string { return "tool_result" }

// Message is one canonical conversation entry. Content is either a plain
// string (Blocks nil) or an ordered block sequence (Blocks non-nil; Content
// ignored).
type Message struct {
	Role    Role
	Content string
	Blocks  []Block
}

// Text returns a Message with plain string content.
func Text(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// --- JSON codec (used by conversation persistence) ---

type wireBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Blocks == nil {
		return json.Marshal(struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Content})
	}
	blocks := make([]wireBlock, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case TextBlock:
			blocks = append(blocks, wireBlock{Type: "text", Text: blk.Text})
		case ToolUseBlock:
			blocks = append(blocks, wireBlock{Type: "tool_use", ID: blk.ID, Name: blk.Name, Input: blk.Input})
		case ToolResultBlock:
			blocks = append(blocks, wireBlock{Type: "tool_result", ToolUseID: blk.ToolUseID, Content: blk.Content, IsError: blk.IsError})
		default:
			return nil, fmt.Errorf("providers: unknown block type %T", b)
		}
	}
	return json.Marshal(struct {
		Role    Role        `json:"role"`
		Content []wireBlock `json:"content"`
	}{m.Role, blocks})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var probe struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	m.Role = probe.Role
	m.Blocks = nil
	m.Content = ""

	var s string
	if err := json.Unmarshal(probe.Content, &s); err == nil {
		m.Content = s
		return nil
	}

	var blocks []wireBlock
	if err := json.Unmarshal(probe.Content, &blocks); err != nil {
		return fmt.Errorf("providers: message content is neither string nor block list: %w", err)
	}
	m.Blocks = make([]Block, 0, len(blocks))
	for _, wb := range blocks {
		switch wb.Type {
		case "text":
			m.Blocks = append(m.Blocks, TextBlock{Text: wb.Text})
		case "tool_use":
			m.Blocks = append(m.Blocks, ToolUseBlock{ID: wb.ID, Name: wb.Name, Input: wb.Input})
		case "tool_result":
			m.Blocks = append(m.Blocks, ToolResultBlock{ToolUseID: wb.ToolUseID, Content: wb.Content, IsError: wb.IsError})
		default:
			return fmt.Errorf("providers: unknown block type %q", wb.Type)
		}
	}
	return nil
}

// ToolSchema describes one tool to the LLM.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is one exchange with a provider: the whole canonical history plus
// the tool catalog. Responses are delivered whole, not streamed.
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []Message
	Tools     []ToolSchema
}

// ToolCall is a tool invocation extracted from a provider response.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Response is the provider-independent result of one exchange.
type Response struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	StopReason   string     `json:"stop_reason,omitempty"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
}

// Provider is implemented by each wire-dialect adapter.
type Provider interface {
	SendMessage(ctx context.Context, req Request) (*Response, error)
	Name() string
}
