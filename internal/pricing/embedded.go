package pricing

import "time"

// EmbeddedVersion identifies the compiled-in pricing table.
const EmbeddedVersion = "embedded-2026-02-01"

// Embedded returns the compiled-in fallback pricing table, used when no pricing
// file is configured or it cannot be read.
func Embedded() *Table {
	return NewTable(EmbeddedVersion, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), embeddedRates)
}

var embeddedRates = map[string]Rate{
	// Opus 4.5 / 4.6
	"claude-opus-4-6": {Input: 5e-06, Output: 2.5e-05, CacheWrite: 6.25e-06, CacheRead: 5e-07},
	"claude-opus-4-5": {Input: 5e-06, Output: 2.5e-05, CacheWrite: 6.25e-06, CacheRead: 5e-07},
	// Opus 4.1 / 4
	"claude-opus-4-1": {Input: 1.5e-05, Output: 7.5e-05, CacheWrite: 1.875e-05, CacheRead: 1.5e-06},
	"claude-opus-4":   {Input: 1.5e-05, Output: 7.5e-05, CacheWrite: 1.875e-05, CacheRead: 1.5e-06},
	// Sonnet 4.5 / 4 / 3.7 / 3.5
	"claude-sonnet-4-5": {Input: 3e-06, Output: 1.5e-05, CacheWrite: 3.75e-06, CacheRead: 3e-07},
	"claude-sonnet-4":   {Input: 3e-06, Output: 1.5e-05, CacheWrite: 3.75e-06, CacheRead: 3e-07},
	"claude-3-7-sonnet": {Input: 3e-06, Output: 1.5e-05, CacheWrite: 3.75e-06, CacheRead: 3e-07},
	"claude-3-5-sonnet": {Input: 3e-06, Output: 1.5e-05, CacheWrite: 3.75e-06, CacheRead: 3e-07},
	// Haiku 4.5 / 3.5 / 3
	"claude-haiku-4-5": {Input: 1e-06, Output: 5e-06, CacheWrite: 1.25e-06, CacheRead: 1e-07},
	"claude-3-5-haiku": {Input: 8e-07, Output: 4e-06, CacheWrite: 1e-06, CacheRead: 8e-08},
	"claude-3-haiku":   {Input: 2.5e-07, Output: 1.25e-06, CacheWrite: 3e-07, CacheRead: 3e-08},

	// OpenAI
	"gpt-5":        {Input: 1.25e-06, Output: 1e-05, CacheRead: 1.25e-07},
	"gpt-5-codex":  {Input: 1.25e-06, Output: 1e-05, CacheRead: 1.25e-07},
	"gpt-5-mini":   {Input: 2.5e-07, Output: 2e-06, CacheRead: 2.5e-08},
	"gpt-4.1":      {Input: 2e-06, Output: 8e-06, CacheRead: 5e-07},
	"gpt-4.1-mini": {Input: 4e-07, Output: 1.6e-06, CacheRead: 1e-07},
	"gpt-4o":       {Input: 2.5e-06, Output: 1e-05, CacheRead: 1.25e-06},
	"gpt-4o-mini":  {Input: 1.5e-07, Output: 6e-07, CacheRead: 7.5e-08},
	"o3":           {Input: 2e-06, Output: 8e-06, CacheRead: 5e-07},
	"o3-mini":      {Input: 1.1e-06, Output: 4.4e-06, CacheRead: 5.5e-07},
	"codex-mini":   {Input: 1.5e-06, Output: 6e-06, CacheRead: 3.75e-07},

	// Google
	"gemini-2.5-pro":   {Input: 1.25e-06, Output: 1e-05, CacheRead: 3.1e-07},
	"gemini-2.5-flash": {Input: 3e-07, Output: 2.5e-06, CacheRead: 7.5e-08},
	"gemini-3-pro":     {Input: 2e-06, Output: 1.2e-05, CacheRead: 2e-07},
	"gemini-3-flash":   {Input: 5e-07, Output: 3e-06, CacheRead: 5e-08},

	// Others seen through OpenClaw and OpenCode
	"kimi-k2.5":     {Input: 6e-07, Output: 3e-06, CacheRead: 1e-07},
	"minimax-m2.5":  {Input: 3e-07, Output: 1.2e-06, CacheRead: 3e-08, CacheWrite: 3.75e-07},
	"deepseek-chat": {Input: 2.8e-07, Output: 4.2e-07, CacheRead: 2.8e-08},
	"glm-4.6":       {Input: 6e-07, Output: 2.2e-06, CacheRead: 1.1e-07},
}
