// Package tools holds the fixed catalog of mediated tools. Every execution
// runs the same pipeline: compute a policy action, evaluate it, journal the
// decision, then (only if allowed) perform the side effect.
package tools

import (
	"context"
	"log/slog"

	"github.com/tamalehq/tamalebot/internal/audit"
	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/providers"
)

// Tool is one catalog entry. Name, Description, and InputSchema are
// forwarded to the LLM; Action and Run are the mediated execution side.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any

	// Action derives the policy action kind and target string from the
	// structured input, before anything runs.
	Action(args map[string]any) (actionType, target string)

	// Run performs the side effect. Only called after the policy allowed
	// the action.
	Run(ctx context.Context, args map[string]any) *Result
}

// Registry is the tool catalog plus the mediation pipeline.
type Registry struct {
	agentID string
	policy  *policy.Engine
	journal *audit.Journal
	tools   map[string]Tool
	order   []string
}

func NewRegistry(agentID string, engine *policy.Engine, journal *audit.Journal) *Registry {
	return &Registry{
		agentID: agentID,
		policy:  engine,
		journal: journal,
		tools:   make(map[string]Tool),
	}
}

// Register adds a tool to the catalog. Re-registering a name replaces it.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Schemas returns the catalog in provider form, registration order.
func (r *Registry) Schemas() []providers.ToolSchema {
	schemas := make([]providers.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		schemas = append(schemas, providers.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return schemas
}

// Execute runs the uniform mediation pipeline for one tool invocation.
// An audit entry is written for every attempt, allowed or blocked.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	tool, ok := r.tools[name]
	if !ok {
		return ErrorResult("unknown tool: %s", name)
	}

	actionType, target := tool.Action(args)
	decision := r.policy.Evaluate(actionType, target)

	auditDecision := audit.DecisionAllowed
	if !decision.Allowed {
		auditDecision = audit.DecisionBlocked
	}
	if _, err := r.journal.Log(audit.Record{
		AgentID:    r.agentID,
		ActionType: actionType,
		Target:     target,
		Decision:   auditDecision,
		Reason:     decision.Reason,
	}); err != nil {
		// A failed journal write must not crash the turn.
		slog.Warn("tools: audit write failed", "tool", name, "error", err)
	}

	if !decision.Allowed {
		slog.Warn("tools: blocked by policy",
			"agent", r.agentID, "tool", name, "action", actionType, "reason", decision.Reason)
		return ErrorResult("BLOCKED by security policy: %s", decision.Reason)
	}

	slog.Debug("tool call", "agent", r.agentID, "tool", name, "action", actionType, "target", target)
	return tool.Run(ctx, args)
}
