package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/vault"
)

const gitDeployKeyName = "GIT_DEPLOY_KEY"

// gitActions maps permitted subcommands to whether they touch a remote and
// therefore need the deploy key.
var gitActions = map[string]bool{
	"clone":    true,
	"pull":     true,
	"push":     true,
	"fetch":    true,
	"status":   false,
	"diff":     false,
	"commit":   false,
	"log":      false,
	"checkout": false,
	"add":      false,
	"branch":   false,
}

// GitTool runs a fixed set of git subcommands. Remote operations use a
// deploy key from the vault, exposed to git via GIT_SSH_COMMAND and a
// short-lived 0600 temp file.
type GitTool struct {
	vault      *vault.Vault
	workingDir string
}

func NewGitTool(v *vault.Vault, workingDir string) *GitTool {
	return &GitTool{vault: v, workingDir: workingDir}
}

func (t *GitTool) Name() string        { return "git" }
func (t *GitTool) Description() string { return "Run git operations in the workspace" }

func (t *GitTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"clone", "pull", "push", "fetch", "status", "diff", "commit", "log", "checkout", "add", "branch"},
				"description": "Git subcommand to run",
			},
			"repo": map[string]any{
				"type":        "string",
				"description": "Repository URL (for clone) or remote name",
			},
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Additional arguments as separate tokens, e.g. [\"-m\", \"fix the build\"]",
			},
			"dir": map[string]any{
				"type":        "string",
				"description": "Repository directory (default: working directory)",
			},
		},
		"required": []string{"action"},
	}
}

func (t *GitTool) Action(args map[string]any) (string, string) {
	action := stringArg(args, "action")
	repo := stringArg(args, "repo")
	target := action
	if repo != "" {
		target = action + " " + repo
	}
	return policy.ActionGit, target
}

// gitArgv assembles the git argument vector. Extra arguments arrive as an
// array of tokens; each token is passed through verbatim, so multi-word
// values like commit messages survive. A bare string is tolerated and split
// on whitespace.
func gitArgv(args map[string]any) []string {
	argv := []string{stringArg(args, "action")}
	if repo := stringArg(args, "repo"); repo != "" {
		argv = append(argv, repo)
	}
	switch extra := args["args"].(type) {
	case []any:
		for _, v := range extra {
			if s, ok := v.(string); ok {
				argv = append(argv, s)
			}
		}
	case []string:
		argv = append(argv, extra...)
	case string:
		argv = append(argv, strings.Fields(extra)...)
	}
	return argv
}

func (t *GitTool) Run(ctx context.Context, args map[string]any) *Result {
	action := stringArg(args, "action")
	remote, ok := gitActions[action]
	if !ok {
		return ErrorResult("unsupported git action: %q", action)
	}

	argv := gitArgv(args)

	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", argv...)
	cmd.Dir = stringArgDefault(args, "dir", t.workingDir)
	cmd.Env = os.Environ()

	if remote {
		cred, err := t.vault.Get(ctx, gitDeployKeyName)
		if err != nil {
			return ErrorResult("vault lookup failed: %v", err)
		}
		if cred != nil {
			keyPath, err := writeKeyFile(cred.Value)
			if err != nil {
				return ErrorResult("deploy key setup failed: %v", err)
			}
			defer os.Remove(keyPath)
			cmd.Env = append(cmd.Env, fmt.Sprintf(
				"GIT_SSH_COMMAND=ssh -i %s -o StrictHostKeyChecking=accept-new -o UserKnownHostsFile=/dev/null -o BatchMode=yes",
				keyPath))
		}
	}

	out, runErr := cmd.CombinedOutput()
	output := truncate(string(out), shellResultLimit)

	if ctx.Err() == context.DeadlineExceeded {
		return ErrorResult("git %s timed out\n%s", action, output)
	}
	if runErr != nil {
		return ErrorResult("git %s failed: %v\n%s", action, runErr, output)
	}
	if output == "" {
		output = fmt.Sprintf("git %s completed", action)
	}
	return NewResult(output)
}
