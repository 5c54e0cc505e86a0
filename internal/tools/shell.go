package tools

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tamalehq/tamalebot/internal/policy"
)

const (
	shellDefaultTimeout = 30 * time.Second
	shellMaxTimeout     = 120 * time.Second
	shellCaptureLimit   = 1 << 20 // hard cap on captured subprocess output
	shellResultLimit    = 10_000  // bytes returned to the model
)

// ShellTool runs commands via sh -c in the agent's working directory.
type ShellTool struct {
	workingDir string
	agentID    string
}

func NewShellTool(workingDir, agentID string) *ShellTool {
	return &ShellTool{workingDir: workingDir, agentID: agentID}
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Execute a shell command and return its output"
}

func (t *ShellTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout_ms": map[string]any{
				"type":        "number",
				"description": "Timeout in milliseconds (default 30000, max 120000)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Action(args map[string]any) (string, string) {
	return policy.ActionCommand, stringArg(args, "command")
}

var errCaptureLimit = errors.New("output capture limit exceeded")

// capture collects stdout and stderr against a shared byte budget and
// cancels the subprocess once the budget runs out.
type capture struct {
	mu       sync.Mutex
	stdout   []byte
	stderr   []byte
	remain   int
	overflow bool
	cancel   context.CancelFunc
}

type captureWriter struct {
	c      *capture
	stderr bool
}

func (w captureWriter) Write(p []byte) (int, error) {
	c := w.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overflow {
		return 0, errCaptureLimit
	}
	n := len(p)
	if n > c.remain {
		p = p[:c.remain]
		c.overflow = true
		c.cancel()
	}
	if w.stderr {
		c.stderr = append(c.stderr, p...)
	} else {
		c.stdout = append(c.stdout, p...)
	}
	c.remain -= len(p)
	if c.overflow {
		return 0, errCaptureLimit
	}
	return n, nil
}

func (t *ShellTool) Run(ctx context.Context, args map[string]any) *Result {
	command := stringArg(args, "command")
	if command == "" {
		return ErrorResult("command is required")
	}

	timeout := shellDefaultTimeout
	if ms := intArgDefault(args, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > shellMaxTimeout {
			timeout = shellMaxTimeout
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf := &capture{remain: shellCaptureLimit, cancel: cancel}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.workingDir
	cmd.Env = append(os.Environ(), "TAMALEBOT_AGENT_ID="+t.agentID)
	cmd.Stdout = captureWriter{c: buf}
	cmd.Stderr = captureWriter{c: buf, stderr: true}

	runErr := cmd.Run()

	buf.mu.Lock()
	output := string(buf.stdout)
	if len(buf.stderr) > 0 {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + string(buf.stderr)
	}
	overflow := buf.overflow
	buf.mu.Unlock()
	output = truncate(output, shellResultLimit)

	if overflow {
		return ErrorResult("command killed: output exceeded %d bytes\n%s", shellCaptureLimit, output)
	}
	if ctx.Err() == context.DeadlineExceeded {
		return ErrorResult("command timed out after %s", timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return ErrorResult("command exited with code %d\n%s", exitErr.ExitCode(), output)
		}
		return ErrorResult("command failed: %v", runErr)
	}

	if output == "" {
		output = "(command completed with no output)"
	}
	return NewResult(output)
}
