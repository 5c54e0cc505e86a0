package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tamalehq/tamalebot/internal/policy"
)

const webPageLimit = 20_000 // characters of extracted page text

var (
	scriptRe     = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// WebTool fetches a URL and returns the page text with markup stripped.
// Outbound requests are gated by the domain allow-list.
type WebTool struct {
	client *http.Client
}

func NewWebTool() *WebTool {
	return &WebTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *WebTool) Name() string        { return "web_browse" }
func (t *WebTool) Description() string { return "Fetch a web page and return its text content" }

func (t *WebTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebTool) Action(args map[string]any) (string, string) {
	return policy.ActionHTTPRequest, stringArg(args, "url")
}

func (t *WebTool) Run(ctx context.Context, args map[string]any) *Result {
	url := stringArg(args, "url")
	if url == "" {
		return ErrorResult("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrorResult("invalid request: %v", err)
	}
	req.Header.Set("User-Agent", "tamalebot/1.0 (+https://github.com/tamalehq/tamalebot)")

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult("fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrorResult("fetch failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ErrorResult("read failed: %v", err)
	}

	text := extractText(string(body))
	if len(text) > webPageLimit {
		text = text[:webPageLimit] + "\n... [page truncated]"
	}
	if text == "" {
		return NewResult(fmt.Sprintf("(no text content at %s)", url))
	}
	return NewResult(text)
}

// extractText strips scripts, styles, and tags, then collapses whitespace.
func extractText(html string) string {
	s := scriptRe.ReplaceAllString(html, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
