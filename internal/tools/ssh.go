package tools

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/vault"
)

const sshDefaultKeyName = "SSH_KEY"

// SSHTool runs a command on a remote host using a private key held in the
// vault. The key touches disk only as a 0600 temp file that is removed
// before the result returns.
type SSHTool struct {
	vault *vault.Vault
}

func NewSSHTool(v *vault.Vault) *SSHTool {
	return &SSHTool{vault: v}
}

func (t *SSHTool) Name() string        { return "ssh_exec" }
func (t *SSHTool) Description() string { return "Run a command on a remote host over SSH" }

func (t *SSHTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host": map[string]any{
				"type":        "string",
				"description": "Remote host to connect to",
			},
			"command": map[string]any{
				"type":        "string",
				"description": "Command to run on the remote host",
			},
			"user": map[string]any{
				"type":        "string",
				"description": "Remote user (default root)",
			},
			"port": map[string]any{
				"type":        "number",
				"description": "SSH port (default 22)",
			},
			"key_name": map[string]any{
				"type":        "string",
				"description": "Vault credential holding the private key (default SSH_KEY)",
			},
			"timeout_ms": map[string]any{
				"type":        "number",
				"description": "Timeout in milliseconds (default 30000, max 120000)",
			},
		},
		"required": []string{"host", "command"},
	}
}

func (t *SSHTool) Action(args map[string]any) (string, string) {
	user := stringArgDefault(args, "user", "root")
	host := stringArg(args, "host")
	port := intArgDefault(args, "port", 22)
	return policy.ActionSSHExec, fmt.Sprintf("%s@%s:%d", user, host, port)
}

// writeKeyFile writes key material to a randomly named 0600 file in the
// temp dir and returns its path. Callers must remove it.
func writeKeyFile(key string) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), "tb-key-"+hex.EncodeToString(raw[:]))
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (t *SSHTool) Run(ctx context.Context, args map[string]any) *Result {
	host := stringArg(args, "host")
	command := stringArg(args, "command")
	if host == "" || command == "" {
		return ErrorResult("host and command are required")
	}
	user := stringArgDefault(args, "user", "root")
	port := intArgDefault(args, "port", 22)
	keyName := stringArgDefault(args, "key_name", sshDefaultKeyName)

	cred, err := t.vault.Get(ctx, keyName)
	if err != nil {
		return ErrorResult("vault lookup failed: %v", err)
	}
	if cred == nil {
		return ErrorResult("no SSH key named %s in vault; generate one with the vault tool", keyName)
	}

	keyPath, err := writeKeyFile(cred.Value)
	if err != nil {
		return ErrorResult("key file setup failed: %v", err)
	}
	defer os.Remove(keyPath)

	timeout := shellDefaultTimeout
	if ms := intArgDefault(args, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > shellMaxTimeout {
			timeout = shellMaxTimeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ssh",
		"-i", keyPath,
		"-p", fmt.Sprintf("%d", port),
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "BatchMode=yes",
		fmt.Sprintf("%s@%s", user, host),
		command,
	)
	out, runErr := cmd.CombinedOutput()
	output := truncate(string(out), shellResultLimit)

	if ctx.Err() == context.DeadlineExceeded {
		return ErrorResult("ssh command timed out\n%s", output)
	}
	if runErr != nil {
		return ErrorResult("ssh failed: %v\n%s", runErr, output)
	}
	if output == "" {
		output = "(command completed with no output)"
	}
	return NewResult(output)
}
