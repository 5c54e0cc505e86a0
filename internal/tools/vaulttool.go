package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/vault"
)

// VaultTool exposes credential management to the model. Values returned by
// the get action are masked; plaintext only flows to subprocesses via the
// ssh and git tools, never back into conversation history.
type VaultTool struct {
	vault *vault.Vault
}

func NewVaultTool(v *vault.Vault) *VaultTool {
	return &VaultTool{vault: v}
}

func (t *VaultTool) Name() string { return "vault" }
func (t *VaultTool) Description() string {
	return "Manage stored credentials: set, get (masked), delete, list, generate_ssh_key"
}

func (t *VaultTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"set", "get", "delete", "list", "generate_ssh_key"},
				"description": "Operation to perform",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Credential name, uppercase with underscores (e.g. GITHUB_TOKEN)",
			},
			"value": map[string]any{
				"type":        "string",
				"description": "Credential value, for set",
			},
			"credential_type": map[string]any{
				"type":        "string",
				"description": "One of api_key, ssh_key, token, database_url, generic",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Optional human-readable description",
			},
		},
		"required": []string{"action"},
	}
}

func (t *VaultTool) Action(args map[string]any) (string, string) {
	action := stringArg(args, "action")
	name := stringArg(args, "name")
	target := action
	if name != "" {
		target = action + " " + name
	}
	return policy.ActionVault, target
}

func (t *VaultTool) Run(ctx context.Context, args map[string]any) *Result {
	name := stringArg(args, "name")

	switch stringArg(args, "action") {
	case "set":
		value := stringArg(args, "value")
		opts := vault.SetOptions{
			Type:        vault.CredentialType(stringArgDefault(args, "credential_type", string(vault.TypeGeneric))),
			Description: stringArg(args, "description"),
		}
		if err := t.vault.Set(ctx, name, value, opts); err != nil {
			return ErrorResult("vault set failed: %v", err)
		}
		return NewResult(fmt.Sprintf("stored credential %s (%s)", name, vault.Mask(value)))

	case "get":
		cred, err := t.vault.Get(ctx, name)
		if err != nil {
			return ErrorResult("vault get failed: %v", err)
		}
		if cred == nil {
			return ErrorResult("credential %s not found", name)
		}
		return NewResult(fmt.Sprintf("%s = %s (type: %s)", name, vault.Mask(cred.Value), cred.Meta.Type))

	case "delete":
		if err := t.vault.Delete(ctx, name); err != nil {
			return ErrorResult("vault delete failed: %v", err)
		}
		return NewResult(fmt.Sprintf("deleted credential %s", name))

	case "list":
		items, err := t.vault.List(ctx)
		if err != nil {
			return ErrorResult("vault list failed: %v", err)
		}
		if len(items) == 0 {
			return NewResult("(vault is empty)")
		}
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "%s (type: %s", item.Name, item.Meta.Type)
			if item.Meta.Description != "" {
				fmt.Fprintf(&b, ", %s", item.Meta.Description)
			}
			b.WriteString(")\n")
		}
		return NewResult(strings.TrimRight(b.String(), "\n"))

	case "generate_ssh_key":
		pub, err := t.vault.GenerateSSHKey(ctx, name)
		if err != nil {
			return ErrorResult("key generation failed: %v", err)
		}
		return NewResult(fmt.Sprintf("generated Ed25519 keypair %s\npublic key:\n%s", name, pub))

	default:
		return ErrorResult("unknown vault action: %q", stringArg(args, "action"))
	}
}
