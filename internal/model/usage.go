package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawUsageRecord is a single usage event as emitted by a session-log scanner.
// A nil token count means the source does not track that field.
type RawUsageRecord struct {
	Source      SourceID
	Application string
	RawModel    string
	Timestamp   time.Time

	InputTokens      *int64
	OutputTokens     *int64
	CacheReadTokens  *int64
	CacheWriteTokens *int64

	// SessionKey is unique within Source; empty when the source cannot assert identity.
	SessionKey string
}

// Int returns a tracked token count.
func Int(n int64) *int64 {
	return &n
}

func val(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// Tokens returns input, output, cache read and cache write counts with untracked fields as zero.
func (r RawUsageRecord) Tokens() (input, output, cacheRead, cacheWrite int64) {
	return val(r.InputTokens), val(r.OutputTokens), val(r.CacheReadTokens), val(r.CacheWriteTokens)
}

// Empty reports whether the record carries no token usage at all.
func (r RawUsageRecord) Empty() bool {
	in, out, cr, cw := r.Tokens()
	return in == 0 && out == 0 && cr == 0 && cw == 0
}

// CanonicalModel is the normalized identity of a raw model string.
type CanonicalModel struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Provider string `json:"provider"`
	Raw      string `json:"raw,omitempty"`
}

// UnknownProvider marks models that matched no alias or vendor family.
const UnknownProvider = "unknown"

// Known reports whether the model matched an alias or vendor family.
func (m CanonicalModel) Known() bool {
	return m.Provider != UnknownProvider
}

// PriceRate holds per-token prices for one canonical model.
type PriceRate struct {
	ModelID    string  `json:"model_id"`
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
	Currency   string  `json:"currency"`
	Version    string  `json:"version"`
}

// PricedUsageRecord is a raw record with its canonical model and cost attached.
type PricedUsageRecord struct {
	RawUsageRecord
	Model          CanonicalModel
	Cost           decimal.Decimal
	PricingVersion string
	Unpriced       bool
}

// Totals accumulates token counts and cost.
type Totals struct {
	Input      int64           `json:"input"`
	Output     int64           `json:"output"`
	CacheRead  int64           `json:"cache_read"`
	CacheWrite int64           `json:"cache_write"`
	Cost       decimal.Decimal `json:"cost"`
	Records    int64           `json:"records"`
	Unpriced   int64           `json:"unpriced,omitempty"`
}

// Tokens returns the sum of all four token fields.
func (t Totals) Tokens() int64 {
	return t.Input + t.Output + t.CacheRead + t.CacheWrite
}

// AddRecord folds a priced record into t.
func (t *Totals) AddRecord(r PricedUsageRecord) {
	in, out, cr, cw := r.Tokens()
	t.Input += in
	t.Output += out
	t.CacheRead += cr
	t.CacheWrite += cw
	t.Cost = t.Cost.Add(r.Cost)
	t.Records++
	if r.Unpriced {
		t.Unpriced++
	}
}

// Add folds other into t.
func (t *Totals) Add(other Totals) {
	t.Input += other.Input
	t.Output += other.Output
	t.CacheRead += other.CacheRead
	t.CacheWrite += other.CacheWrite
	t.Cost = t.Cost.Add(other.Cost)
	t.Records += other.Records
	t.Unpriced += other.Unpriced
}

// ModelTotals are the totals of one canonical model within an application.
type ModelTotals struct {
	Model CanonicalModel `json:"model"`
	Totals
}

// Window is a half-open [Start, End) time range in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// UsageSummary is the hierarchical result of one aggregation run.
// It is not modified after being returned.
type UsageSummary struct {
	Period                 string                            `json:"period"`
	Window                 Window                            `json:"window"`
	TotalCost              decimal.Decimal                   `json:"total_cost"`
	TotalTokens            int64                             `json:"total_tokens"`
	Totals                 Totals                            `json:"totals"`
	PerApplication         map[string]Totals                 `json:"per_application"`
	PerApplicationPerModel map[string]map[string]ModelTotals `json:"per_application_per_model"`
	UnpricedModels         []string                          `json:"unpriced_models,omitempty"`
	PricingVersion         string                            `json:"pricing_version"`
	PricingStale           bool                              `json:"pricing_stale,omitempty"`
	SourceErrors           map[SourceID]string               `json:"source_errors,omitempty"`
	ComputedAt             time.Time                         `json:"computed_at"`
}

// DayUsage is the usage of one local calendar day.
type DayUsage struct {
	Date   string            `json:"date"` // "2006-01-02"
	Totals Totals            `json:"totals"`
	Models map[string]Totals `json:"models"`
}

// Stats summarizes daily usage over a longer range.
type Stats struct {
	Window         Window              `json:"window"`
	Days           []DayUsage          `json:"contributions"`
	Totals         Totals              `json:"totals"`
	FavoriteModel  string              `json:"favorite_model"`
	ActiveDays     int                 `json:"active_days"`
	TotalDays      int                 `json:"total_days"`
	CurrentStreak  int                 `json:"current_streak"`
	LongestStreak  int                 `json:"longest_streak"`
	PricingVersion string              `json:"pricing_version"`
	SourceErrors   map[SourceID]string `json:"source_errors,omitempty"`
}
