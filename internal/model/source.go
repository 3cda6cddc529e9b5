package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SourceID identifies the system a usage record came from.
type SourceID string

const (
	SourceOpenCode  SourceID = "opencode"
	SourceCodex     SourceID = "codex"
	SourceClaude    SourceID = "claude"
	SourceGeminiCLI SourceID = "gemini_cli"
	SourceOpenClaw  SourceID = "openclaw"
	// SourceFallback is the external tokscale-compatible backend. It may re-report
	// sessions already read by a direct scanner.
	SourceFallback SourceID = "fallback"
)

// AllSources lists every source in precedence order.
var AllSources = []SourceID{
	SourceOpenCode,
	SourceCodex,
	SourceClaude,
	SourceGeminiCLI,
	SourceOpenClaw,
	SourceFallback,
}

// CodingTools are the coding-assistant sources, excluding OpenClaw.
var CodingTools = []SourceID{
	SourceOpenCode,
	SourceCodex,
	SourceClaude,
	SourceGeminiCLI,
	SourceFallback,
}

// ErrUnknownSource is returned for source names outside the enumeration.
var ErrUnknownSource = errors.New("unknown source")

// ParseSourceID parses a source name. "gemini" and "claude-code" are accepted aliases.
func ParseSourceID(s string) (SourceID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opencode":
		return SourceOpenCode, nil
	case "codex":
		return SourceCodex, nil
	case "claude", "claude-code", "claude_code":
		return SourceClaude, nil
	case "gemini_cli", "gemini", "gemini-cli":
		return SourceGeminiCLI, nil
	case "openclaw":
		return SourceOpenClaw, nil
	case "fallback", "tokscale":
		return SourceFallback, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// ParseSourceSet turns a filter into a sorted source set. Accepted filters are
// "", "all", "combined", "coding", "openclaw" or a comma-separated list of names.
func ParseSourceSet(filter string) ([]SourceID, error) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "all", "combined":
		return SortSources(AllSources), nil
	case "coding", "tools", "coding_tools":
		return SortSources(CodingTools), nil
	}

	var out []SourceID
	for _, part := range strings.Split(filter, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseSourceID(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return SortSources(out), nil
}

// SortSources returns a sorted copy of ids with duplicates removed.
func SortSources(ids []SourceID) []SourceID {
	seen := make(map[SourceID]bool, len(ids))
	out := make([]SourceID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// JoinSources renders a source set as a stable string.
func JoinSources(ids []SourceID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
