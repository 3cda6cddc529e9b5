package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/zhaobenny/tokdash/internal/model"
)

func init() {
	color.NoColor = true
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-45000, "-45,000"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCost(t *testing.T) {
	if got := FormatCost(decimal.RequireFromString("1.315")); got != "$1.32" {
		t.Errorf("FormatCost = %q", got)
	}
	if got := FormatCost(decimal.Zero); got != "$0.00" {
		t.Errorf("FormatCost(0) = %q", got)
	}
}

func summary() *model.UsageSummary {
	codex := model.Totals{Input: 1200, Output: 300, Cost: decimal.RequireFromString("0.5"), Records: 2}
	claude := model.Totals{Input: 5000, Output: 100, CacheRead: 40000, Cost: decimal.RequireFromString("2.25"), Records: 3}
	var total model.Totals
	total.Add(codex)
	total.Add(claude)

	return &model.UsageSummary{
		Period: "today",
		Window: model.Window{
			Start: time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC),
		},
		Totals:         total,
		TotalCost:      total.Cost,
		PerApplication: map[string]model.Totals{"codex": codex, "claude": claude},
		PerApplicationPerModel: map[string]map[string]model.ModelTotals{
			"codex": {"gpt-5": {Model: model.CanonicalModel{ID: "gpt-5", Label: "GPT-5"}, Totals: codex}},
		},
		UnpricedModels: []string{"my-local-model"},
		SourceErrors:   map[model.SourceID]string{model.SourceGeminiCLI: "permission denied"},
	}
}

func TestPrintSummary(t *testing.T) {
	t.Setenv("COLUMNS", "200")
	var buf bytes.Buffer
	PrintSummary(&buf, summary(), TableOptions{})
	out := buf.String()

	for _, want := range []string{"Application", "Cache Read", "40,000", "$2.25", "$2.75", "my-local-model", "gemini_cli failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "claude") > strings.Index(out, "codex") {
		t.Error("rows should be ordered by cost")
	}
}

func TestPrintSummaryCompact(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, summary(), TableOptions{ForceCompact: true})
	out := buf.String()
	if strings.Contains(out, "Cache Read") || !strings.Contains(out, "Compact mode") {
		t.Errorf("expected compact table:\n%s", out)
	}
}

func TestPrintModels(t *testing.T) {
	t.Setenv("COLUMNS", "200")
	var buf bytes.Buffer
	PrintModels(&buf, summary(), TableOptions{})
	if !strings.Contains(buf.String(), "GPT-5") {
		t.Errorf("output missing model label:\n%s", buf.String())
	}
}

func TestPrintDays(t *testing.T) {
	t.Setenv("COLUMNS", "200")
	days := []model.DayUsage{
		{Date: "2026-02-25", Totals: model.Totals{Input: 10, Cost: decimal.RequireFromString("0.1")}, Models: map[string]model.Totals{"gpt-5": {}}},
		{Date: "2026-02-24", Totals: model.Totals{Input: 20, Cost: decimal.RequireFromString("0.2")}, Models: map[string]model.Totals{"claude-opus-4.6": {}}},
	}
	var buf bytes.Buffer
	PrintDays(&buf, days, TableOptions{})
	out := buf.String()
	for _, want := range []string{"2026-02-25", "$0.30", "  - claude-opus-4.6", "  - gpt-5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintJSON(t *testing.T) {
	var compact, pretty bytes.Buffer
	v := map[string]int{"a": 1}
	if err := PrintJSON(&compact, v, false); err != nil {
		t.Fatal(err)
	}
	if err := PrintJSON(&pretty, v, true); err != nil {
		t.Fatal(err)
	}
	if compact.String() != "{\"a\":1}\n" {
		t.Errorf("compact = %q", compact.String())
	}
	if pretty.String() != "{\n  \"a\": 1\n}\n" {
		t.Errorf("pretty = %q", pretty.String())
	}
}
