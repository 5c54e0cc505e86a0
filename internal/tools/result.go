package tools

import "fmt"

// Result is the unified return type from tool execution. Tool failures and
// policy denials are results, never Go errors: the LLM observes them as
// error-flagged tool results and can adapt.
type Result struct {
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

func NewResult(output string) *Result {
	return &Result{Output: output}
}

func ErrorResult(format string, args ...any) *Result {
	return &Result{Output: fmt.Sprintf(format, args...), IsError: true}
}

// truncate caps s at max bytes, appending a marker when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... [output truncated]"
}
