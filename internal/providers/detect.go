package providers

import "strings"

// Dialect names accepted by config and returned by DetectDialect.
const (
	DialectAnthropic = "anthropic"
	DialectOpenAI    = "openai"
)

var dialectPrefixes = []struct {
	prefix  string
	dialect string
}{
	{"claude", DialectAnthropic},
	{"gpt", DialectOpenAI},
	{"o1", DialectOpenAI},
	{"o3", DialectOpenAI},
	{"kimi", DialectOpenAI},
	{"gemini", DialectOpenAI},
	{"minimax", DialectOpenAI},
}

// DetectDialect infers the wire dialect from a model identifier prefix.
// Unknown models default to the native block dialect.
func DetectDialect(model string) string {
	m := strings.ToLower(model)
	for _, entry := range dialectPrefixes {
		if strings.HasPrefix(m, entry.prefix) {
			return entry.dialect
		}
	}
	return DialectAnthropic
}
