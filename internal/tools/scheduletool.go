package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/schedule"
)

// ScheduleTool lets the model manage its own recurring tasks.
type ScheduleTool struct {
	store *schedule.Store
}

func NewScheduleTool(store *schedule.Store) *ScheduleTool {
	return &ScheduleTool{store: store}
}

func (t *ScheduleTool) Name() string { return "schedule" }
func (t *ScheduleTool) Description() string {
	return "Manage scheduled tasks: create, list, delete, pause, resume"
}

func (t *ScheduleTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"create", "list", "delete", "pause", "resume"},
				"description": "Operation to perform",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Schedule name, for create",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "Five-field cron expression, for create",
			},
			"task": map[string]any{
				"type":        "string",
				"description": "Natural-language task to run, for create",
			},
			"id": map[string]any{
				"type":        "string",
				"description": "Schedule ID, for delete/pause/resume",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ScheduleTool) Action(args map[string]any) (string, string) {
	action := stringArg(args, "action")
	target := action
	if id := stringArg(args, "id"); id != "" {
		target = action + " " + id
	} else if name := stringArg(args, "name"); name != "" {
		target = action + " " + name
	}
	return policy.ActionSchedule, target
}

func (t *ScheduleTool) Run(ctx context.Context, args map[string]any) *Result {
	id := stringArg(args, "id")

	switch stringArg(args, "action") {
	case "create":
		e, err := t.store.Create(ctx, stringArg(args, "name"), stringArg(args, "cron"), stringArg(args, "task"))
		if err != nil {
			return ErrorResult("schedule create failed: %v", err)
		}
		return NewResult(fmt.Sprintf("created schedule %s (%s) running %q", e.ID, e.Cron, e.Name))

	case "list":
		entries, err := t.store.List(ctx)
		if err != nil {
			return ErrorResult("schedule list failed: %v", err)
		}
		if len(entries) == 0 {
			return NewResult("(no schedules)")
		}
		var b strings.Builder
		for _, e := range entries {
			state := "enabled"
			if !e.Enabled {
				state = "paused"
			}
			fmt.Fprintf(&b, "%s  %s  %q  %s", e.ID, e.Cron, e.Name, state)
			if e.LastRun != "" {
				fmt.Fprintf(&b, "  last run %s", e.LastRun)
			}
			b.WriteString("\n")
		}
		return NewResult(strings.TrimRight(b.String(), "\n"))

	case "delete":
		if err := t.store.Delete(ctx, id); err != nil {
			return ErrorResult("schedule delete failed: %v", err)
		}
		return NewResult(fmt.Sprintf("deleted schedule %s", id))

	case "pause":
		if _, err := t.store.Pause(ctx, id); err != nil {
			return ErrorResult("schedule pause failed: %v", err)
		}
		return NewResult(fmt.Sprintf("paused schedule %s", id))

	case "resume":
		if _, err := t.store.Resume(ctx, id); err != nil {
			return ErrorResult("schedule resume failed: %v", err)
		}
		return NewResult(fmt.Sprintf("resumed schedule %s", id))

	default:
		return ErrorResult("unknown schedule action: %q", stringArg(args, "action"))
	}
}
