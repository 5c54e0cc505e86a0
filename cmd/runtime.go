package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tamalehq/tamalebot/internal/agent"
	"github.com/tamalehq/tamalebot/internal/audit"
	"github.com/tamalehq/tamalebot/internal/config"
	"github.com/tamalehq/tamalebot/internal/conversations"
	"github.com/tamalehq/tamalebot/internal/policy"
	"github.com/tamalehq/tamalebot/internal/schedule"
	"github.com/tamalehq/tamalebot/internal/storage"
	"github.com/tamalehq/tamalebot/internal/tools"
	"github.com/tamalehq/tamalebot/internal/vault"
)

// runtime holds the assembled components shared by the serve and chat
// commands. Close flushes the audit journal.
type runtime struct {
	cfg           *config.Config
	journal       *audit.Journal
	store         storage.Backend
	engine        *policy.Engine
	vault         *vault.Vault
	registry      *tools.Registry
	loop          *agent.Loop
	conversations *conversations.Store
}

func (r *runtime) Close() error {
	return r.journal.Close()
}

func systemPrompt(agentName string) string {
	return fmt.Sprintf(
		"You are %s, an autonomous assistant. You can run shell commands, read and write files, browse the web, manage credentials, run git and SSH operations, and schedule recurring tasks. Every action is checked against a security policy and recorded in an audit log; when an action is blocked, explain the denial and propose a safer alternative.",
		agentName)
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	cfg.Verbose = verbose

	if err := os.MkdirAll(cfg.WorkingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	journal, err := audit.New(filepath.Join(cfg.DataDir, "audit"))
	if err != nil {
		return nil, err
	}

	backend, err := cfg.NewStorage()
	if err != nil {
		journal.Close()
		return nil, err
	}

	engine, err := cfg.NewPolicyEngine()
	if err != nil {
		journal.Close()
		return nil, err
	}

	provider, err := cfg.NewProvider()
	if err != nil {
		journal.Close()
		return nil, err
	}

	v := vault.New(cfg.VaultKey, cfg.AgentID, backend, journal)
	schedules := schedule.NewStore(backend, cfg.AgentName)

	registry := tools.NewRegistry(cfg.AgentID, engine, journal)
	registry.Register(tools.NewShellTool(cfg.WorkingDir, cfg.AgentID))
	registry.Register(tools.FileReadTool{})
	registry.Register(tools.FileWriteTool{})
	registry.Register(tools.NewWebTool())
	registry.Register(tools.NewVaultTool(v))
	registry.Register(tools.NewSSHTool(v))
	registry.Register(tools.NewGitTool(v, cfg.WorkingDir))
	registry.Register(tools.NewScheduleTool(schedules))

	loop := agent.New(agent.Config{
		Provider:     provider,
		Registry:     registry,
		Model:        cfg.Model,
		SystemPrompt: systemPrompt(cfg.AgentName),
		MaxTokens:    cfg.MaxTokens,
	})

	return &runtime{
		cfg:           cfg,
		journal:       journal,
		store:         backend,
		engine:        engine,
		vault:         v,
		registry:      registry,
		loop:          loop,
		conversations: conversations.NewStore(backend),
	}, nil
}
