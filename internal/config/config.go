// Package config assembles the runtime configuration record from the
// environment. All env reads happen here, at the CLI boundary; everything
// below takes explicit values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/providers"
	"github.com/tamalehq/tamalebot/internal/storage"
)

// Defaults applied when the environment is silent.
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultAgentID   = "default"
	DefaultAgentName = "tamale"
	DefaultPolicy    = "default"
	DefaultPort      = 8787
	DefaultMaxTokens = 8192
)

var ErrMissingAPIKey = errors.New("config: no API key set (ANTHROPIC_API_KEY, OPENAI_API_KEY, or TAMALEBOT_API_KEY)")

// Config is the assembled runtime configuration.
type Config struct {
	Provider   string // dialect name; empty means detect from model
	Model      string
	APIKey     string
	AgentID    string
	AgentName  string
	Policy     string // preset name or path to a YAML presets file
	StorageURL string // remote backend base URL; empty means local
	VaultKey   string // key-derivation source secret
	DataDir    string
	WorkingDir string
	Port       int
	MaxTokens  int
	Verbose    bool
}

// Load builds a Config from the environment. envFile, when non-empty, is
// loaded first via godotenv; a missing file is only an error when it was
// requested explicitly.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err == nil {
		slog.Debug("config: loaded .env")
	}

	cfg := &Config{
		Provider:   os.Getenv("TAMALEBOT_PROVIDER"),
		Model:      envDefault("TAMALEBOT_MODEL", DefaultModel),
		AgentID:    envDefault("TAMALEBOT_AGENT_ID", DefaultAgentID),
		AgentName:  envDefault("TAMALEBOT_AGENT_NAME", DefaultAgentName),
		Policy:     envDefault("TAMALEBOT_POLICY", DefaultPolicy),
		StorageURL: os.Getenv("TAMALEBOT_STORAGE_URL"),
		VaultKey:   os.Getenv("TAMALEBOT_VAULT_KEY"),
		Port:       DefaultPort,
		MaxTokens:  DefaultMaxTokens,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg.DataDir = envDefault("TAMALEBOT_DATA_DIR", filepath.Join(home, ".tamalebot"))
	cfg.WorkingDir = envDefault("TAMALEBOT_WORKDIR", filepath.Join(cfg.DataDir, "workspace"))

	cfg.APIKey = firstEnv("TAMALEBOT_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if cfg.Provider == "" {
		cfg.Provider = providers.DetectDialect(cfg.Model)
	}
	if cfg.VaultKey == "" {
		// Fall back to the API key as derivation source, as a single-secret
		// deployment would.
		cfg.VaultKey = cfg.APIKey
	}
	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// NewProvider constructs the provider adapter for the configured dialect.
func (c *Config) NewProvider() (providers.Provider, error) {
	switch c.Provider {
	case providers.DialectAnthropic:
		return providers.NewAnthropicProvider(c.APIKey, providers.WithAnthropicModel(c.Model)), nil
	case providers.DialectOpenAI:
		return providers.NewOpenAIProvider("openai", c.APIKey, "", c.Model), nil
	default:
		return nil, fmt.Errorf("config: unknown provider dialect %q", c.Provider)
	}
}

// NewPolicyEngine resolves the policy setting: a path to a YAML presets
// file, or a built-in preset name. A file with several policies must
// include one named "default"; a file with exactly one uses that one.
func (c *Config) NewPolicyEngine() (*policy.Engine, error) {
	if _, err := os.Stat(c.Policy); err == nil {
		presets, err := policy.LoadPresetFile(c.Policy)
		if err != nil {
			return nil, err
		}
		if cfg, ok := presets["default"]; ok {
			return policy.NewEngine(cfg), nil
		}
		if len(presets) == 1 {
			for _, cfg := range presets {
				return policy.NewEngine(cfg), nil
			}
		}
		return nil, fmt.Errorf("config: %s defines %d policies and none named \"default\"", c.Policy, len(presets))
	}
	return policy.NewEngine(policy.Preset(c.Policy)), nil
}

// NewStorage picks the storage backend from StorageURL:
//
//	http://host or https://host  remote key-value service
//	sqlite:/path/to/file.db      embedded sqlite database
//	(empty)                      filesystem tree under DataDir
func (c *Config) NewStorage() (storage.Backend, error) {
	switch {
	case strings.HasPrefix(c.StorageURL, "http://"), strings.HasPrefix(c.StorageURL, "https://"):
		return storage.NewRemote(c.StorageURL), nil
	case strings.HasPrefix(c.StorageURL, "sqlite:"):
		return storage.NewSQLite(strings.TrimPrefix(c.StorageURL, "sqlite:"))
	case c.StorageURL != "":
		return nil, fmt.Errorf("config: unsupported storage URL %q", c.StorageURL)
	default:
		return storage.NewFS(filepath.Join(c.DataDir, "storage"))
	}
}
