// Package agent drives the conversation loop: send history to the provider,
// execute any requested tools through the mediation pipeline, feed results
// back, repeat until the model answers in plain text or the iteration bound
// is hit.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamalehq/tamalebot/internal/providers"
	"github.com/tamalehq/tamalebot/internal/tools"
)

const defaultMaxIterations = 20

// Hooks receive loop progress callbacks. All fields are optional.
type Hooks struct {
	OnText       func(text string)
	OnToolCall   func(name string, input map[string]any)
	OnToolResult func(name string, result *tools.Result)
	OnTokens     func(inputTokens, outputTokens int)
}

// Config sets up one loop instance.
type Config struct {
	Provider      providers.Provider
	Registry      *tools.Registry
	Model         string
	SystemPrompt  string
	MaxTokens     int
	MaxIterations int
	Hooks         Hooks
}

// Result summarizes one completed turn.
type Result struct {
	Text          string `json:"text"`
	ToolCallCount int    `json:"tool_call_count"`
	Iterations    int    `json:"iterations"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`
}

// Loop is one agent-loop instance. Loops are cheap; one per turn is fine.
type Loop struct {
	cfg Config
}

func New(cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	return &Loop{cfg: cfg}
}

// SetHooks replaces the loop's progress callbacks.
func (l *Loop) SetHooks(h Hooks) { l.cfg.Hooks = h }

// Run executes one turn. It appends the user text to history, then loops:
// provider call, tool execution, repeat. It returns the final text, the
// mutated history, and any provider error. Tool failures never abort the
// turn; they flow back to the model as error-flagged results.
func (l *Loop) Run(ctx context.Context, history []providers.Message, userText string) (*Result, []providers.Message, error) {
	history = append(history, providers.Text(providers.RoleUser, userText))

	res := &Result{}
	hooks := l.cfg.Hooks

	for res.Iterations < l.cfg.MaxIterations {
		res.Iterations++

		resp, err := l.cfg.Provider.SendMessage(ctx, providers.Request{
			Model:     l.cfg.Model,
			System:    l.cfg.SystemPrompt,
			MaxTokens: l.cfg.MaxTokens,
			Messages:  history,
			Tools:     l.cfg.Registry.Schemas(),
		})
		if err != nil {
			return nil, history, fmt.Errorf("agent: provider call: %w", err)
		}

		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		if hooks.OnTokens != nil {
			hooks.OnTokens(resp.InputTokens, resp.OutputTokens)
		}
		if resp.Text != "" {
			res.Text = resp.Text
			if hooks.OnText != nil {
				hooks.OnText(resp.Text)
			}
		}

		if len(resp.ToolCalls) == 0 {
			history = append(history, providers.Text(providers.RoleAssistant, resp.Text))
			return res, history, nil
		}

		// Assistant message: optional text block, then the tool-use blocks
		// in response order.
		var blocks []providers.Block
		if resp.Text != "" {
			blocks = append(blocks, providers.TextBlock{Text: resp.Text})
		}
		for _, call := range resp.ToolCalls {
			blocks = append(blocks, providers.ToolUseBlock{ID: call.ID, Name: call.Name, Input: call.Input})
		}
		history = append(history, providers.Message{Role: providers.RoleAssistant, Blocks: blocks})

		// Tools run strictly in order. The canonical history pairs each
		// assistant message with exactly one user message of results, so
		// intra-batch parallelism is off the table.
		results := make([]providers.Block, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if hooks.OnToolCall != nil {
				hooks.OnToolCall(call.Name, call.Input)
			}
			result := l.cfg.Registry.Execute(ctx, call.Name, call.Input)
			if hooks.OnToolResult != nil {
				hooks.OnToolResult(call.Name, result)
			}
			res.ToolCallCount++
			results = append(results, providers.ToolResultBlock{
				ToolUseID: call.ID,
				Content:   result.Output,
				IsError:   result.IsError,
			})
		}
		history = append(history, providers.Message{Role: providers.RoleUser, Blocks: results})
	}

	slog.Warn("agent: iteration bound reached", "iterations", res.Iterations, "toolCalls", res.ToolCallCount)
	return res, history, nil
}
