// Package normalize maps provider-specific model strings to canonical model ids.
package normalize

import (
	"regexp"
	"strings"

	"github.com/zhaobenny/tokdash/internal/model"
)

type aliasKey struct {
	source model.SourceID
	raw    string
}

type alias struct {
	id       string
	label    string
	provider string
}

// sourceAliases handles per-source quirks. An empty source applies to every source.
var sourceAliases = map[aliasKey]alias{
	{model.SourceCodex, "codex-mini-latest"}:        {"codex-mini", "Codex Mini", "openai"},
	{model.SourceCodex, "gpt-5-codex"}:              {"gpt-5-codex", "GPT-5 Codex", "openai"},
	{model.SourceGeminiCLI, "gemini-2.5-pro"}:       {"gemini-2.5-pro", "Gemini 2.5 Pro", "google"},
	{model.SourceGeminiCLI, "gemini-2.5-flash"}:     {"gemini-2.5-flash", "Gemini 2.5 Flash", "google"},
	{model.SourceClaude, "<synthetic>"}:             {"synthetic", "<synthetic>", "anthropic"},
	{"", "gpt-4.1"}:                                 {"gpt-4.1", "GPT-4.1", "openai"},
	{"", "gpt-4.1-2025-04-14"}:                      {"gpt-4.1", "GPT-4.1", "openai"},
	{"", "claude-opus-4-5-20251101"}:                {"claude-opus-4.5", "Claude Opus 4.5", "anthropic"},
	{"", "claude-sonnet-4-5-20250929"}:              {"claude-sonnet-4.5", "Claude Sonnet 4.5", "anthropic"},
	{"", "claude-haiku-4-5-20251001"}:               {"claude-haiku-4.5", "Claude Haiku 4.5", "anthropic"},
	{"", "anthropic/claude-sonnet-4-5-20250929"}:    {"claude-sonnet-4.5", "Claude Sonnet 4.5", "anthropic"},
	{model.SourceOpenClaw, "github-copilot/gpt-4o"}: {"gpt-4o", "GPT-4o", "openai"},
}

// familyAliases collapse variants of one family after suffix stripping.
var familyAliases = map[string]string{
	"gemini-3-pro-high":    "gemini-3-pro",
	"gemini-3-pro-low":     "gemini-3-pro",
	"gemini-3-pro-preview": "gemini-3-pro",
	"o3-mini-high":         "o3-mini",
	"o3-mini-low":          "o3-mini",
	"claude-3-5-sonnet":    "claude-3.5-sonnet",
	"claude-3-7-sonnet":    "claude-3.7-sonnet",
	"claude-3-5-haiku":     "claude-3.5-haiku",
	"k2p5":                 "k2.5",
	"k2-5":                 "k2.5",
}

var (
	modelPrefixRe   = regexp.MustCompile(`^(models?)[:/]`)
	vendorPrefixRe  = regexp.MustCompile(`^antigravity-`)
	separatorRe     = regexp.MustCompile(`[\s_]+`)
	dashRunRe       = regexp.MustCompile(`-+`)
	releaseRe       = regexp.MustCompile(`-(latest|stable)$`)
	previewRe       = regexp.MustCompile(`-(preview|exp|experimental)(-[\w]+)?$`)
	dateStampRe     = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{8})$`)
	thinkingRe      = regexp.MustCompile(`-thinking$`)
	versionHyphenRe = regexp.MustCompile(`-(\d)-(\d+)`)
	kimiK25Re       = regexp.MustCompile(`k2(p|-)5`)
)

type family struct {
	re       *regexp.Regexp
	provider string
}

var families = []family{
	{regexp.MustCompile(`^claude-`), "anthropic"},
	{regexp.MustCompile(`^(gpt-|o\d(-|$)|codex|chatgpt-)`), "openai"},
	{regexp.MustCompile(`^gemini-`), "google"},
	{regexp.MustCompile(`^kimi-`), "moonshot"},
	{regexp.MustCompile(`^minimax-`), "minimax"},
	{regexp.MustCompile(`^deepseek-`), "deepseek"},
	{regexp.MustCompile(`^qwen`), "alibaba"},
	{regexp.MustCompile(`^glm-`), "zhipu"},
	{regexp.MustCompile(`^grok-`), "xai"},
	{regexp.MustCompile(`^(mistral|codestral|devstral)`), "mistral"},
	{regexp.MustCompile(`^llama`), "meta"},
}

// Normalize maps raw to its canonical model. It never fails: strings that match no
// alias or family come back with Provider "unknown" and the raw string as label.
func Normalize(raw string, source model.SourceID) model.CanonicalModel {
	trimmed := strings.TrimSpace(raw)

	if a, ok := sourceAliases[aliasKey{source, trimmed}]; ok {
		return model.CanonicalModel{ID: a.id, Label: a.label, Provider: a.provider, Raw: raw}
	}
	if a, ok := sourceAliases[aliasKey{"", trimmed}]; ok {
		return model.CanonicalModel{ID: a.id, Label: a.label, Provider: a.provider, Raw: raw}
	}

	if trimmed == "" {
		return model.CanonicalModel{ID: "unknown", Label: raw, Provider: model.UnknownProvider, Raw: raw}
	}

	key := Key(trimmed)
	for _, f := range families {
		if f.re.MatchString(key) {
			return model.CanonicalModel{ID: key, Label: key, Provider: f.provider, Raw: raw}
		}
	}

	return model.CanonicalModel{
		ID:       strings.ToLower(trimmed),
		Label:    raw,
		Provider: model.UnknownProvider,
		Raw:      raw,
	}
}

// Key applies the family rules to s and returns the resulting model key.
// Provider path prefixes, release suffixes and date stamps are removed.
func Key(s string) string {
	n := strings.ToLower(strings.TrimSpace(s))
	if n == "" {
		return "unknown"
	}

	n = strings.ReplaceAll(n, `\`, "/")
	n = modelPrefixRe.ReplaceAllString(n, "")
	if i := strings.LastIndex(n, "/"); i >= 0 {
		n = n[i+1:]
	}
	n = vendorPrefixRe.ReplaceAllString(n, "")

	n = separatorRe.ReplaceAllString(n, "-")
	n = strings.Trim(dashRunRe.ReplaceAllString(n, "-"), "-")

	n = releaseRe.ReplaceAllString(n, "")
	n = previewRe.ReplaceAllString(n, "")
	n = dateStampRe.ReplaceAllString(n, "")
	n = thinkingRe.ReplaceAllString(n, "")

	if a, ok := familyAliases[n]; ok {
		n = a
	}

	n = versionHyphenRe.ReplaceAllString(n, "-${1}.${2}")

	if strings.HasPrefix(n, "opus") || strings.HasPrefix(n, "sonnet") || strings.HasPrefix(n, "haiku") {
		n = "claude-" + n
	}

	n = kimiK25Re.ReplaceAllString(n, "k2.5")
	switch n {
	case "k2.5", "kimi2.5", "kimi-2.5":
		n = "kimi-k2.5"
	}
	if strings.HasPrefix(n, "kimi") && strings.Contains(n, "2.5") {
		n = "kimi-k2.5"
	}

	if n == "" {
		return "unknown"
	}
	return n
}
