package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TAMALEBOT_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"TAMALEBOT_PROVIDER", "TAMALEBOT_MODEL", "TAMALEBOT_AGENT_ID",
		"TAMALEBOT_AGENT_NAME", "TAMALEBOT_POLICY", "TAMALEBOT_STORAGE_URL",
		"TAMALEBOT_VAULT_KEY", "TAMALEBOT_DATA_DIR", "TAMALEBOT_WORKDIR",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Load = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != DefaultModel || cfg.AgentID != DefaultAgentID || cfg.Policy != DefaultPolicy {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q, want dialect detected from model", cfg.Provider)
	}
	if cfg.VaultKey != "sk-ant-test" {
		t.Error("VaultKey did not fall back to the API key")
	}
}

func TestLoadDialectFollowsModel(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TAMALEBOT_MODEL", "gpt-4o")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "agent.env")
	os.WriteFile(path, []byte("TAMALEBOT_API_KEY=from-file\nTAMALEBOT_AGENT_ID=prod\n"), 0o600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "from-file" || cfg.AgentID != "prod" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Error("explicit missing env file did not error")
	}
}

func TestNewPolicyEngineFromPreset(t *testing.T) {
	cfg := &Config{Policy: "strict"}
	engine, err := cfg.NewPolicyEngine()
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	if engine.Name() != "strict" {
		t.Errorf("engine = %q", engine.Name())
	}
}

func TestNewPolicyEngineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	os.WriteFile(path, []byte(`policies:
  - name: lab
    allowed_domains: ["example.com"]
`), 0o600)

	cfg := &Config{Policy: path}
	engine, err := cfg.NewPolicyEngine()
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	if engine.Name() != "lab" {
		t.Errorf("engine = %q", engine.Name())
	}
}

func TestNewStorageSelection(t *testing.T) {
	dir := t.TempDir()

	cfg := &Config{StorageURL: "sqlite:" + filepath.Join(dir, "kv.db"), DataDir: dir}
	if _, err := cfg.NewStorage(); err != nil {
		t.Errorf("sqlite backend: %v", err)
	}

	cfg = &Config{StorageURL: "https://kv.internal:9000", DataDir: dir}
	if _, err := cfg.NewStorage(); err != nil {
		t.Errorf("remote backend: %v", err)
	}

	cfg = &Config{StorageURL: "", DataDir: dir}
	if _, err := cfg.NewStorage(); err != nil {
		t.Errorf("fs backend: %v", err)
	}

	cfg = &Config{StorageURL: "ftp://nope", DataDir: dir}
	if _, err := cfg.NewStorage(); err == nil {
		t.Error("unsupported storage URL accepted")
	}
}

func TestNewProviderUnknownDialect(t *testing.T) {
	cfg := &Config{Provider: "smoke-signals"}
	if _, err := cfg.NewProvider(); err == nil {
		t.Error("unknown dialect accepted")
	}
}
