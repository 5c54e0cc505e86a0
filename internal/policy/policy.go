// Package policy implements the single decision point every mediated action
// passes through before execution. The engine is stateless: one configuration
// in, deterministic allow/deny decisions out.
package policy

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Action kinds understood by Evaluate. Unknown kinds default to allow.
const (
	ActionFileRead    = "file_read"
	ActionFileWrite   = "file_write"
	ActionCommand     = "command"
	ActionHTTPRequest = "http_request"
	ActionSSHExec     = "ssh_exec"
	ActionGit         = "git"
	ActionVault       = "vault"
	ActionSchedule    = "schedule"
)

// Decision is the result of one policy evaluation.
type Decision struct {
	Allowed         bool     `json:"allowed"`
	Reason          string   `json:"reason,omitempty"`
	MatchedPatterns []string `json:"matchedPatterns,omitempty"`
}

// Config is a named policy. Empty allow-lists mean "no restriction";
// empty block-lists mean "no block".
type Config struct {
	Name              string   `yaml:"name" json:"name"`
	BlockedReadPaths  []string `yaml:"blocked_read_paths" json:"blockedReadPaths"`
	BlockedWritePaths []string `yaml:"blocked_write_paths" json:"blockedWritePaths"`
	DangerousCommands []string `yaml:"dangerous_commands" json:"dangerousCommands"`
	AllowedDomains    []string `yaml:"allowed_domains,omitempty" json:"allowedDomains,omitempty"`
	AllowedSSHHosts   []string `yaml:"allowed_ssh_hosts,omitempty" json:"allowedSSHHosts,omitempty"`
	AllowedRepos      []string `yaml:"allowed_repos,omitempty" json:"allowedRepos,omitempty"`
	// Requests per minute accepted by the hosting surface. 0 = unlimited.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute,omitempty" json:"rateLimitPerMinute,omitempty"`
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// Engine evaluates mediated actions against one Config.
type Engine struct {
	cfg      Config
	home     string
	patterns []compiledPattern
}

// Option configures the engine at construction.
type Option func(*Engine)

// WithHome overrides the home directory used for "~" expansion.
func WithHome(home string) Option {
	return func(e *Engine) { e.home = home }
}

// NewEngine compiles the configuration once. Dangerous-command patterns
// compile case-insensitive; invalid patterns are dropped with a warning.
// "~" entries expand against the process home unless WithHome overrides it.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg}
	if home, err := os.UserHomeDir(); err == nil {
		e.home = home
	}
	for _, o := range opts {
		o(e)
	}
	for _, src := range cfg.DangerousCommands {
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			slog.Warn("policy: dropping invalid command pattern", "pattern", src, "error", err)
			continue
		}
		e.patterns = append(e.patterns, compiledPattern{source: src, re: re})
	}
	return e
}

// Name returns the configured policy name.
func (e *Engine) Name() string { return e.cfg.Name }

// RateLimitPerMinute exposes the configured request rate limit.
func (e *Engine) RateLimitPerMinute() int { return e.cfg.RateLimitPerMinute }

// expandHome resolves a leading "~" against the engine's home directory.
// A trailing slash survives expansion; directory entries depend on it.
func (e *Engine) expandHome(path string) string {
	if path == "~" {
		return e.home
	}
	if strings.HasPrefix(path, "~/") {
		expanded := filepath.Join(e.home, path[2:])
		if strings.HasSuffix(path, "/") && !strings.HasSuffix(expanded, "/") {
			expanded += "/"
		}
		return expanded
	}
	return path
}

// Evaluate decides whether an action may proceed. Deterministic for any
// (actionType, target) pair under a fixed configuration.
func (e *Engine) Evaluate(actionType, target string) Decision {
	switch actionType {
	case ActionFileRead:
		return e.evaluateFileRead(target)
	case ActionFileWrite:
		return e.evaluateFileWrite(target)
	case ActionCommand:
		return e.evaluateCommand(target)
	case ActionHTTPRequest:
		return e.evaluateHTTPRequest(target)
	case ActionSSHExec:
		return e.evaluateSSHExec(target)
	case ActionGit:
		return e.evaluateGit(target)
	case ActionVault, ActionSchedule:
		// Mediation for these happens inside the tool itself.
		return Decision{Allowed: true}
	default:
		return Decision{Allowed: true}
	}
}

func (e *Engine) evaluateFileRead(path string) Decision {
	expanded := e.expandHome(path)
	for _, blocked := range e.cfg.BlockedReadPaths {
		b := e.expandHome(blocked)
		// Directory entries are marked by the trailing slash on the
		// configured value, before any expansion.
		if strings.HasSuffix(blocked, "/") {
			if !strings.HasSuffix(b, "/") {
				b += "/"
			}
			if strings.HasPrefix(expanded, b) {
				return Decision{Allowed: false, Reason: fmt.Sprintf("Access to sensitive directory blocked: %s", blocked)}
			}
			continue
		}
		if expanded == b {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Access to sensitive file blocked: %s", blocked)}
		}
	}
	return Decision{Allowed: true}
}

func (e *Engine) evaluateFileWrite(path string) Decision {
	expanded := e.expandHome(path)
	for _, blocked := range e.cfg.BlockedWritePaths {
		b := e.expandHome(blocked)
		if strings.HasPrefix(expanded, b) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Write to protected path blocked: %s", blocked)}
		}
	}
	return Decision{Allowed: true}
}

func (e *Engine) evaluateCommand(command string) Decision {
	var matched []string
	for _, p := range e.patterns {
		if p.re.MatchString(command) {
			matched = append(matched, p.source)
		}
	}
	if len(matched) == 0 {
		return Decision{Allowed: true}
	}
	shown := matched
	if len(shown) > 2 {
		shown = shown[:2]
	}
	return Decision{
		Allowed:         false,
		Reason:          fmt.Sprintf("Dangerous command pattern: %s", strings.Join(shown, ", ")),
		MatchedPatterns: matched,
	}
}

func (e *Engine) evaluateHTTPRequest(rawURL string) Decision {
	if len(e.cfg.AllowedDomains) == 0 {
		return Decision{Allowed: true}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return Decision{Allowed: false, Reason: "Invalid URL"}
	}
	host := strings.ToLower(parsed.Hostname())
	if hostAllowed(host, e.cfg.AllowedDomains) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("Domain not in allow-list: %s", host)}
}

func (e *Engine) evaluateSSHExec(target string) Decision {
	if len(e.cfg.AllowedSSHHosts) == 0 {
		return Decision{Allowed: true}
	}
	host := sshHost(target)
	if hostAllowed(strings.ToLower(host), e.cfg.AllowedSSHHosts) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("SSH host not in allow-list: %s", host)}
}

func (e *Engine) evaluateGit(target string) Decision {
	if len(e.cfg.AllowedRepos) == 0 {
		return Decision{Allowed: true}
	}
	fields := strings.Fields(target)
	if len(fields) < 2 {
		return Decision{Allowed: true}
	}
	repo := fields[1]
	// Only remote-looking targets are subject to the allow-list; local
	// paths (status, diff in a checkout) always pass.
	if !looksRemote(repo) {
		return Decision{Allowed: true}
	}
	for _, allowed := range e.cfg.AllowedRepos {
		if strings.Contains(repo, allowed) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("Repository not in allow-list: %s", repo)}
}

func looksRemote(repo string) bool {
	return strings.Contains(repo, "://") ||
		strings.Contains(repo, "@") ||
		strings.Contains(repo, "github.com")
}

// hostAllowed matches a host exactly or as a subdomain at a label boundary
// (host "a.b.example.com" matches entry "example.com" but "evilexample.com"
// does not).
func hostAllowed(host string, allowed []string) bool {
	for _, entry := range allowed {
		entry = strings.ToLower(entry)
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// sshHost extracts the host from a "user@host:port" target.
func sshHost(target string) string {
	host := target
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	if colon := strings.Index(host, ":"); colon >= 0 {
		host = host[:colon]
	}
	return host
}
