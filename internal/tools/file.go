package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tamalehq/tamalebot/internal/policy"
)

const fileReadLimit = 50_000 // bytes of file content returned to the model

// FileReadTool reads a file from disk, subject to the read-path policy.
type FileReadTool struct{}

func (FileReadTool) Name() string        { return "file_read" }
func (FileReadTool) Description() string { return "Read the contents of a file" }

func (FileReadTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (FileReadTool) Action(args map[string]any) (string, string) {
	return policy.ActionFileRead, stringArg(args, "path")
}

func (FileReadTool) Run(_ context.Context, args map[string]any) *Result {
	path := stringArg(args, "path")
	if path == "" {
		return ErrorResult("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult("read failed: %v", err)
	}
	return NewResult(truncate(string(data), fileReadLimit))
}

// FileWriteTool writes a file, creating parent directories as needed.
type FileWriteTool struct{}

func (FileWriteTool) Name() string        { return "file_write" }
func (FileWriteTool) Description() string { return "Write content to a file" }

func (FileWriteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (FileWriteTool) Action(args map[string]any) (string, string) {
	return policy.ActionFileWrite, stringArg(args, "path")
}

func (FileWriteTool) Run(_ context.Context, args map[string]any) *Result {
	path := stringArg(args, "path")
	if path == "" {
		return ErrorResult("path is required")
	}
	content := stringArg(args, "content")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ErrorResult("mkdir failed: %v", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult("write failed: %v", err)
	}
	return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}
