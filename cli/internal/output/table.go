package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/zhaobenny/tokdash/internal/model"
	"golang.org/x/term"
)

const (
	compactThreshold = 100 // Terminal width below which compact mode kicks in
	defaultWidth     = 120
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	totalColor  = color.New(color.Bold)
	warnColor   = color.New(color.FgYellow)
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
}

// terminalWidth returns the width of stdout, honoring $COLUMNS first.
func terminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if width, err := strconv.Atoi(cols); err == nil && width > 0 {
			return width
		}
	}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return defaultWidth
}

// shouldUseCompact determines if compact mode should be used
func shouldUseCompact(opts TableOptions) bool {
	if opts.ForceCompact {
		return true
	}
	return terminalWidth() < compactThreshold
}

// FormatNumber formats a number with thousand separators
func FormatNumber(n int64) string {
	if n == 0 {
		return "0"
	}

	str := strconv.FormatInt(n, 10)
	negative := n < 0
	if negative {
		str = str[1:]
	}

	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// FormatCost formats a cost value as currency
func FormatCost(cost decimal.Decimal) string {
	return "$" + cost.StringFixed(2)
}

// row is one line of a usage table.
type row struct {
	key    string
	totals model.Totals
}

// printRows renders rows under a title column, followed by a total line when
// there is more than one row.
func printRows(w io.Writer, title string, rows []row, opts TableOptions) {
	compact := shouldUseCompact(opts)

	keyWidth := len(title)
	for _, r := range rows {
		keyWidth = max(keyWidth, len(r.key))
	}
	keyWidth = max(keyWidth, 10)
	// Cap key width in compact mode
	if compact && keyWidth > 16 {
		keyWidth = 16
	}

	line := func(c *color.Color, key string, t model.Totals) {
		if len(key) > keyWidth {
			key = key[:keyWidth]
		}
		if compact {
			c.Fprintf(w, "%-*s  %12s  %12s  %10s\n",
				keyWidth, key, FormatNumber(t.Input), FormatNumber(t.Output), FormatCost(t.Cost))
			return
		}
		c.Fprintf(w, "%-*s  %12s  %12s  %14s  %14s  %10s\n",
			keyWidth, key,
			FormatNumber(t.Input),
			FormatNumber(t.Output),
			FormatNumber(t.CacheWrite),
			FormatNumber(t.CacheRead),
			FormatCost(t.Cost))
	}

	var sep string
	if compact {
		headerColor.Fprintf(w, "%-*s  %12s  %12s  %10s\n", keyWidth, title, "Input", "Output", "Cost")
		sep = strings.Repeat("─", keyWidth+2+12+2+12+2+10)
	} else {
		headerColor.Fprintf(w, "%-*s  %12s  %12s  %14s  %14s  %10s\n",
			keyWidth, title, "Input", "Output", "Cache Write", "Cache Read", "Cost")
		sep = strings.Repeat("─", keyWidth+2+12+2+12+2+14+2+14+2+10)
	}
	fmt.Fprintln(w, sep)

	plain := color.New()
	var total model.Totals
	for _, r := range rows {
		line(plain, r.key, r.totals)
		total.Add(r.totals)
	}

	if len(rows) > 1 {
		fmt.Fprintln(w, sep)
		line(totalColor, "Total", total)
	}
	fmt.Fprintln(w)
	if compact {
		fmt.Fprintln(w, "(Compact mode - expand terminal for full view)")
	}
}

// byCost sorts rows by descending cost, then key.
func byCost(rows []row) {
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].totals.Cost.Cmp(rows[j].totals.Cost); c != 0 {
			return c > 0
		}
		return rows[i].key < rows[j].key
	})
}

// PrintSummary prints per-application totals of a summary.
func PrintSummary(w io.Writer, s *model.UsageSummary, opts TableOptions) {
	fmt.Fprintf(w, "\nUsage for %s (%s to %s)\n\n",
		s.Period, s.Window.Start.Local().Format("2006-01-02 15:04"), s.Window.End.Local().Format("2006-01-02 15:04"))

	if s.Totals.Records == 0 {
		fmt.Fprintln(w, "No usage data found for the specified period.")
		printNotes(w, s)
		return
	}

	rows := make([]row, 0, len(s.PerApplication))
	for app, t := range s.PerApplication {
		rows = append(rows, row{key: app, totals: t})
	}
	byCost(rows)
	printRows(w, "Application", rows, opts)
	printNotes(w, s)
}

// PrintModels prints per-model totals of a summary, one table per application.
func PrintModels(w io.Writer, s *model.UsageSummary, opts TableOptions) {
	if s.Totals.Records == 0 {
		fmt.Fprintln(w, "No usage data found for the specified period.")
		printNotes(w, s)
		return
	}

	apps := make([]string, 0, len(s.PerApplicationPerModel))
	for app := range s.PerApplicationPerModel {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	for _, app := range apps {
		models := s.PerApplicationPerModel[app]
		rows := make([]row, 0, len(models))
		for _, mt := range models {
			rows = append(rows, row{key: mt.Model.Label, totals: mt.Totals})
		}
		byCost(rows)
		fmt.Fprintln(w)
		headerColor.Fprintln(w, app)
		printRows(w, "Model", rows, opts)
	}
	printNotes(w, s)
}

// PrintDays prints a daily breakdown, newest first, and the models used.
func PrintDays(w io.Writer, days []model.DayUsage, opts TableOptions) {
	if len(days) == 0 {
		fmt.Fprintln(w, "No usage data found.")
		return
	}

	rows := make([]row, len(days))
	modelsMap := make(map[string]bool)
	for i, d := range days {
		rows[i] = row{key: d.Date, totals: d.Totals}
		for m := range d.Models {
			modelsMap[m] = true
		}
	}
	fmt.Fprintln(w)
	printRows(w, "Date", rows, opts)

	models := make([]string, 0, len(modelsMap))
	for m := range modelsMap {
		models = append(models, m)
	}
	sort.Strings(models)

	fmt.Fprintln(w, "Models used:")
	for _, m := range models {
		fmt.Fprintf(w, "  - %s\n", m)
	}
	fmt.Fprintln(w)
}

func printNotes(w io.Writer, s *model.UsageSummary) {
	if len(s.UnpricedModels) > 0 {
		warnColor.Fprintf(w, "Unpriced models (cost counted as $0): %s\n", strings.Join(s.UnpricedModels, ", "))
	}
	if s.PricingStale {
		warnColor.Fprintf(w, "Pricing table %s is out of date; costs may be inaccurate.\n", s.PricingVersion)
	}
	ids := make([]string, 0, len(s.SourceErrors))
	for id := range s.SourceErrors {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		warnColor.Fprintf(w, "Source %s failed: %s\n", id, s.SourceErrors[model.SourceID(id)])
	}
}

// PrintJSON writes v as JSON, indented when pretty is set.
func PrintJSON(w io.Writer, v any, pretty bool) error {
	encoder := json.NewEncoder(w)
	if pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}
