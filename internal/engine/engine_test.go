package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zhaobenny/tokdash/internal/model"
	"github.com/zhaobenny/tokdash/internal/period"
	"github.com/zhaobenny/tokdash/internal/pricing"
	"github.com/zhaobenny/tokdash/internal/source"
)

type fakeScanner struct {
	id    model.SourceID
	recs  []model.RawUsageRecord
	err   error
	calls atomic.Int32
}

func (f *fakeScanner) Source() model.SourceID { return f.id }

func (f *fakeScanner) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
	f.calls.Add(1)
	return f.recs, f.err
}

var now = time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)

func record(src model.SourceID, app, raw, key string, ts time.Time, in, out int64) model.RawUsageRecord {
	return model.RawUsageRecord{
		Source:       src,
		Application:  app,
		RawModel:     raw,
		Timestamp:    ts,
		InputTokens:  model.Int(in),
		OutputTokens: model.Int(out),
		SessionKey:   key,
	}
}

func testTable() *pricing.Table {
	return pricing.NewTable("v1", now, map[string]pricing.Rate{
		"gpt-4.1": {Input: 0.00001, Output: 0.00003},
	})
}

func newEngine(t *testing.T, scanners ...*fakeScanner) (*Engine, *pricing.Store) {
	t.Helper()
	reg := source.NewRegistry()
	for _, s := range scanners {
		reg.Register(s, "/unused", true)
	}
	store := pricing.NewStore(testTable())
	e := New(Options{
		Registry:    reg,
		Pricing:     store,
		Clock:       func() time.Time { return now },
		Location:    time.UTC,
		TTL:         2 * time.Minute,
		StaleAfter:  30 * 24 * time.Hour,
		Concurrency: 2,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return e, store
}

func TestGetSummary(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1-2025-04-14", "s1", now.Add(-time.Hour), 1000, 500),
		record(model.SourceCodex, "codex", "gpt-4.1", "s0", now.Add(-48*time.Hour), 1000, 500),
	}}
	fallback := &fakeScanner{id: model.SourceFallback, recs: []model.RawUsageRecord{
		record(model.SourceFallback, "codex", "openai/gpt-4.1", "s1", now.Add(-time.Hour), 9000, 9000),
	}}
	e, _ := newEngine(t, codex, fallback)

	sum, err := e.GetSummary(context.Background(), "today", nil)
	if err != nil {
		t.Fatal(err)
	}

	if sum.Totals.Records != 1 {
		t.Fatalf("records = %d, want 1 (fallback duplicate and yesterday excluded)", sum.Totals.Records)
	}
	if want := decimal.RequireFromString("0.025"); !sum.TotalCost.Equal(want) {
		t.Errorf("total cost = %s, want %s", sum.TotalCost, want)
	}
	if sum.Period != "today" || sum.PricingVersion != "v1" {
		t.Errorf("period = %q, version = %q", sum.Period, sum.PricingVersion)
	}
	if sum.PricingStale {
		t.Error("fresh table reported stale")
	}
	if !sum.ComputedAt.Equal(now) {
		t.Errorf("computed at = %v", sum.ComputedAt)
	}
	if _, ok := sum.PerApplicationPerModel["codex"]["gpt-4.1"]; !ok {
		t.Errorf("per model = %v", sum.PerApplicationPerModel)
	}
}

func TestGetSummaryInvalidPeriod(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.GetSummary(context.Background(), "fortnight", nil)
	if !errors.Is(err, period.ErrInvalidPeriod) {
		t.Fatalf("err = %v, want ErrInvalidPeriod", err)
	}
}

func TestSourceFailureIsolation(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1", "s1", now, 1000, 500),
	}}
	claude := &fakeScanner{id: model.SourceClaude, err: errors.New("permission denied")}
	e, _ := newEngine(t, codex, claude)

	sum, err := e.GetSummary(context.Background(), "today", nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Totals.Records != 1 {
		t.Errorf("records = %d, want 1", sum.Totals.Records)
	}
	if msg := sum.SourceErrors[model.SourceClaude]; msg == "" {
		t.Errorf("source errors = %v", sum.SourceErrors)
	}
	if _, ok := sum.SourceErrors[model.SourceCodex]; ok {
		t.Error("healthy source reported as failed")
	}
}

func TestNoData(t *testing.T) {
	claude := &fakeScanner{id: model.SourceClaude, err: errors.New("boom")}
	codex := &fakeScanner{id: model.SourceCodex, err: errors.New("boom")}
	e, _ := newEngine(t, claude, codex)

	_, err := e.GetSummary(context.Background(), "today", nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}

	var scanErr *source.ScanError
	if !errors.As(err, &scanErr) {
		t.Errorf("err = %v, want a ScanError inside", err)
	}
}

func TestZeroUsageIsNotNoData(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex}
	e, _ := newEngine(t, codex)

	sum, err := e.GetSummary(context.Background(), "today", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.TotalCost.IsZero() || sum.TotalTokens != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestSourceFilter(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1", "s1", now, 1000, 500),
	}}
	openclaw := &fakeScanner{id: model.SourceOpenClaw, recs: []model.RawUsageRecord{
		record(model.SourceOpenClaw, "openclaw", "openai/gpt-4.1", "o1", now, 1000, 500),
	}}
	e, _ := newEngine(t, codex, openclaw)

	sum, err := e.GetSummary(context.Background(), "today", []model.SourceID{model.SourceOpenClaw})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sum.PerApplication["codex"]; ok {
		t.Error("filtered source included")
	}
	if codex.calls.Load() != 0 {
		t.Errorf("codex scanned %d times", codex.calls.Load())
	}
}

func TestCacheReuse(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1", "s1", now, 1000, 500),
	}}
	e, _ := newEngine(t, codex)

	for range 3 {
		if _, err := e.GetSummary(context.Background(), "today", []model.SourceID{model.SourceCodex}); err != nil {
			t.Fatal(err)
		}
	}
	if got := codex.calls.Load(); got != 1 {
		t.Errorf("scans = %d, want 1", got)
	}

	// A different period is a different key.
	if _, err := e.GetSummary(context.Background(), "week", []model.SourceID{model.SourceCodex}); err != nil {
		t.Fatal(err)
	}
	if got := codex.calls.Load(); got != 2 {
		t.Errorf("scans = %d, want 2", got)
	}
}

func TestEquivalentPeriodTokensShareCache(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1", "s1", now, 1000, 500),
	}}
	e, _ := newEngine(t, codex)

	for _, token := range []string{"7", "07", "+7", "7days", " 7DAYS "} {
		sum, err := e.GetSummary(context.Background(), token, []model.SourceID{model.SourceCodex})
		if err != nil {
			t.Fatalf("%q: %v", token, err)
		}
		if sum.Period != "7" {
			t.Errorf("%q: period = %q, want 7", token, sum.Period)
		}
	}
	if got := codex.calls.Load(); got != 1 {
		t.Errorf("scans = %d, want 1", got)
	}
	if got := e.summaries.Len(); got != 1 {
		t.Errorf("cache entries = %d, want 1", got)
	}
}

func TestReloadPricingFlushes(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1", "s1", now, 1000, 500),
	}}
	e, _ := newEngine(t, codex)

	first, err := e.GetSummary(context.Background(), "today", nil)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "pricing.json")
	content := `{"version":"v2","models":{"gpt-4.1":{"input":20,"output":60}}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ReloadPricing(path); err != nil {
		t.Fatal(err)
	}

	second, err := e.GetSummary(context.Background(), "today", nil)
	if err != nil {
		t.Fatal(err)
	}
	if codex.calls.Load() != 2 {
		t.Errorf("scans = %d, want recompute after reload", codex.calls.Load())
	}
	if second.PricingVersion != "v2" {
		t.Errorf("version = %q", second.PricingVersion)
	}
	if !second.TotalCost.Equal(first.TotalCost.Mul(decimal.NewFromInt(2))) {
		t.Errorf("cost %s after reload, was %s", second.TotalCost, first.TotalCost)
	}

	if _, err := e.ReloadPricing(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing pricing file")
	}
	if e.Pricing().Version != "v2" {
		t.Error("failed reload replaced the table")
	}
}

func TestGetStats(t *testing.T) {
	codex := &fakeScanner{id: model.SourceCodex, recs: []model.RawUsageRecord{
		record(model.SourceCodex, "codex", "gpt-4.1", "a", now, 1000, 500),
		record(model.SourceCodex, "codex", "gpt-4.1", "b", now.AddDate(0, 0, -1), 1000, 500),
		record(model.SourceCodex, "codex", "gpt-4.1", "c", now.AddDate(0, 0, -3), 1000, 500),
		record(model.SourceCodex, "codex", "gpt-4.1", "d", now.AddDate(-2, 0, 0), 1000, 500),
	}}
	e, _ := newEngine(t, codex)

	st, err := e.GetStats(context.Background(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.ActiveDays != 3 {
		t.Errorf("active days = %d, want 3", st.ActiveDays)
	}
	if st.CurrentStreak != 2 || st.LongestStreak != 2 {
		t.Errorf("streaks = %d/%d, want 2/2", st.CurrentStreak, st.LongestStreak)
	}
	if st.FavoriteModel != "gpt-4.1" {
		t.Errorf("favorite = %q", st.FavoriteModel)
	}
	if got := period.Days(st.Window, time.UTC); got != 365 {
		t.Errorf("window spans %d days", got)
	}

	year, err := e.GetStats(context.Background(), 2024, nil)
	if err != nil {
		t.Fatal(err)
	}
	if year.ActiveDays != 1 {
		t.Errorf("2024 active days = %d, want 1", year.ActiveDays)
	}
}
