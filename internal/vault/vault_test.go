package vault

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tamalehq/tamalebot/internal/storage"
)

func newTestVault(t *testing.T) (*Vault, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	return New("test-secret", "agent-a", store, nil), store
}

func TestSetGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	if err := v.Set(ctx, "MY_KEY", "sk-ant-abc123xyz", SetOptions{Type: TypeAPIKey}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cred, err := v.Get(ctx, "MY_KEY")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred == nil {
		t.Fatal("Get returned nil for stored credential")
	}
	if cred.Value != "sk-ant-abc123xyz" {
		t.Errorf("Value = %q, want original plaintext", cred.Value)
	}
	if cred.Meta.Type != TypeAPIKey {
		t.Errorf("Meta.Type = %q, want %q", cred.Meta.Type, TypeAPIKey)
	}
	if cred.Meta.CreatedAt == "" {
		t.Error("Meta.CreatedAt empty")
	}
}

func TestStoredRecordHasNoPlaintext(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	if err := v.Set(ctx, "SECRET", "super-sensitive-value", SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, _ := store.Get(ctx, "vault/SECRET.json")
	if strings.Contains(string(raw), "super-sensitive-value") {
		t.Error("plaintext found in stored record")
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("stored record is not JSON: %v", err)
	}
	for _, field := range []string{"encrypted", "iv", "tag", "meta"} {
		if _, ok := rec[field]; !ok {
			t.Errorf("stored record missing field %q", field)
		}
	}
}

func TestAgentIsolation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	// Same source secret, distinct agent IDs: derived keys differ, so
	// agent B must fail AEAD verification on agent A's blob.
	a := New("shared-secret", "agent-a", store, nil)
	b := New("shared-secret", "agent-b", store, nil)

	if err := a.Set(ctx, "TOKEN", "value-for-a", SetOptions{Type: TypeToken}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cred, err := b.Get(ctx, "TOKEN")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred != nil {
		t.Error("agent B decrypted agent A's credential")
	}
}

func TestNameValidation(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	bad := []string{"lowercase", "1STARTS_WITH_DIGIT", "HAS-DASH", "A", "", strings.Repeat("A", 65)}
	for _, name := range bad {
		if err := v.Set(ctx, name, "value", SetOptions{}); err != ErrInvalidName {
			t.Errorf("Set(%q) err = %v, want ErrInvalidName", name, err)
		}
		// Get/Delete on invalid names are silent.
		if cred, err := v.Get(ctx, name); err != nil || cred != nil {
			t.Errorf("Get(%q) = (%v, %v), want (nil, nil)", name, cred, err)
		}
		if err := v.Delete(ctx, name); err != nil {
			t.Errorf("Delete(%q) err = %v, want nil", name, err)
		}
	}

	if err := v.Set(ctx, "OK_NAME_2", "value", SetOptions{}); err != nil {
		t.Errorf("Set valid name: %v", err)
	}
}

func TestValueBounds(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	if err := v.Set(ctx, "EMPTY", "", SetOptions{}); err != ErrEmptyValue {
		t.Errorf("empty value err = %v, want ErrEmptyValue", err)
	}
	if err := v.Set(ctx, "BIG", strings.Repeat("x", 16385), SetOptions{}); err != ErrValueTooLong {
		t.Errorf("oversized value err = %v, want ErrValueTooLong", err)
	}
	if err := v.Set(ctx, "MAX", strings.Repeat("x", 16384), SetOptions{}); err != nil {
		t.Errorf("max-size value err = %v, want nil", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault(t)

	v.Set(ctx, "ALPHA", "one", SetOptions{Type: TypeToken})
	v.Set(ctx, "BETA", "two", SetOptions{Type: TypeDatabaseURL, Description: "staging db"})
	// Corrupt entry should be skipped by List.
	store.Put(ctx, "vault/CORRUPT.json", []byte("{broken"))

	items, err := v.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("List = %d items, want 2 (corrupt skipped)", len(items))
	}
	for _, it := range items {
		if it.Name == "BETA" && it.Meta.Description != "staging db" {
			t.Errorf("BETA description = %q", it.Meta.Description)
		}
	}

	if err := v.Delete(ctx, "ALPHA"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if cred, _ := v.Get(ctx, "ALPHA"); cred != nil {
		t.Error("credential survives delete")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"sk-ant-abc123xyz", "sk-a" + strings.Repeat("*", 12)},
		{"ab", "ab****"},
		{"abcdef", "abcd****"},
		{strings.Repeat("z", 100), "zzzz" + strings.Repeat("*", 20)},
	}
	for _, tt := range tests {
		if got := Mask(tt.value); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestGenerateSSHKey(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	pubLine, err := v.GenerateSSHKey(ctx, "DEPLOY_KEY")
	if err != nil {
		t.Fatalf("GenerateSSHKey: %v", err)
	}
	if !strings.HasPrefix(pubLine, "ssh-ed25519 ") {
		t.Errorf("public key line = %q, want ssh-ed25519 prefix", pubLine)
	}
	if !strings.HasSuffix(pubLine, " tamalebot-deploy_key") {
		t.Errorf("public key comment wrong: %q", pubLine)
	}
	if strings.Contains(pubLine, "\n") {
		t.Error("public key line contains newline")
	}

	priv, err := v.Get(ctx, "DEPLOY_KEY")
	if err != nil || priv == nil {
		t.Fatalf("private key missing: %v", err)
	}
	if priv.Meta.Type != TypeSSHKey {
		t.Errorf("private key type = %q", priv.Meta.Type)
	}
	if !strings.Contains(priv.Value, "BEGIN PRIVATE KEY") {
		t.Error("private key is not PEM")
	}

	pub, err := v.Get(ctx, "DEPLOY_KEY_PUB")
	if err != nil || pub == nil {
		t.Fatalf("public key missing: %v", err)
	}
	if pub.Meta.Type != TypeSSHPublicKey {
		t.Errorf("public key type = %q", pub.Meta.Type)
	}
	if pub.Value != pubLine {
		t.Error("stored public key differs from returned line")
	}
}
