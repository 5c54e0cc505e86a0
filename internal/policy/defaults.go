package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultDangerousCommands is the built-in deny list. Matching is textual and
// deliberately over-conservative: "rm -rf /" also denies
// "rm -rf /tmp/workspace/old_files" because the attack surface includes
// arguments a shell would expand unpredictably.
var defaultDangerousCommands = []string{
	`rm -rf /`,
	`rm -fr /`,
	`rm -rf ~`,
	`dd if=`,
	`\bmkfs\b`,
	`> */dev/sd[a-z]`,
	`\b(shutdown|reboot|poweroff)\b`,
	`:\(\)\s*\{.*\};\s*:`,
	`curl .*\|\s*(ba)?sh`,
	`wget .*\|\s*(ba)?sh`,
	`base64 .*-d.*\|\s*(ba)?sh`,
	`\bsudo\b`,
	`\bsu -`,
	`chmod (-R )?777 /`,
	`chown .* /`,
	`\bmkfifo\b`,
	`/dev/tcp/`,
	`\bnc\b.*-[el]`,
	`\bprintenv\b`,
	`^\s*env\s*$`,
	`\bcrontab\b`,
	`\bLD_PRELOAD\s*=`,
	`/var/run/docker\.sock`,
}

var defaultBlockedReadPaths = []string{
	"~/.ssh/",
	"~/.aws/",
	"~/.gnupg/",
	"~/.config/gcloud/",
	"~/.bash_history",
	"~/.zsh_history",
	"/etc/shadow",
	"/etc/sudoers",
	"/root/.ssh/",
}

var defaultBlockedWritePaths = []string{
	"/etc/",
	"/usr/",
	"/bin/",
	"/sbin/",
	"/boot/",
	"/var/spool/cron/",
	"~/.ssh/",
	"~/.bashrc",
	"~/.profile",
}

// builtinPresets are the named policies available without a config file.
var builtinPresets = map[string]Config{
	"default": {
		Name:              "default",
		BlockedReadPaths:  defaultBlockedReadPaths,
		BlockedWritePaths: defaultBlockedWritePaths,
		DangerousCommands: defaultDangerousCommands,
	},
	"strict": {
		Name:               "strict",
		BlockedReadPaths:   append([]string{"~/", "/etc/"}, defaultBlockedReadPaths...),
		BlockedWritePaths:  append([]string{"/"}, defaultBlockedWritePaths...),
		DangerousCommands:  defaultDangerousCommands,
		AllowedDomains:     []string{"api.anthropic.com", "api.openai.com"},
		RateLimitPerMinute: 30,
	},
	"permissive": {
		Name: "permissive",
	},
}

// Preset returns a built-in policy by name, defaulting to "default".
func Preset(name string) Config {
	if name == "" {
		name = "default"
	}
	if cfg, ok := builtinPresets[name]; ok {
		return cfg
	}
	return builtinPresets["default"]
}

// LoadPresetFile reads additional named policies from a YAML file:
//
//	policies:
//	  - name: lab
//	    dangerous_commands: ["sudo"]
//	    allowed_domains: ["example.com"]
//
// Loaded policies shadow built-ins of the same name.
func LoadPresetFile(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read preset file: %w", err)
	}
	var doc struct {
		Policies []Config `yaml:"policies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse preset file: %w", err)
	}
	out := make(map[string]Config, len(doc.Policies))
	for _, p := range doc.Policies {
		if p.Name == "" {
			return nil, fmt.Errorf("policy: preset without a name in %s", path)
		}
		out[p.Name] = p
	}
	return out, nil
}
