// Package aggregator folds priced records into summaries and daily breakdowns.
package aggregator

import (
	"sort"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

const dateLayout = "2006-01-02"

// Aggregate folds the records that fall inside w into a summary. Records with
// no token usage are skipped. The result does not depend on record order.
// Period, pricing and source metadata are left for the caller to fill in.
func Aggregate(records []model.PricedUsageRecord, w model.Window) model.UsageSummary {
	s := model.UsageSummary{
		Window:                 w,
		PerApplication:         make(map[string]model.Totals),
		PerApplicationPerModel: make(map[string]map[string]model.ModelTotals),
	}
	unpriced := make(map[string]bool)

	for _, r := range records {
		if !w.Contains(r.Timestamp) || r.Empty() {
			continue
		}

		s.Totals.AddRecord(r)

		app := s.PerApplication[r.Application]
		app.AddRecord(r)
		s.PerApplication[r.Application] = app

		models := s.PerApplicationPerModel[r.Application]
		if models == nil {
			models = make(map[string]model.ModelTotals)
			s.PerApplicationPerModel[r.Application] = models
		}
		mt, ok := models[r.Model.ID]
		if !ok {
			mt.Model = summaryModel(r.Model)
		} else if r.Model.Label < mt.Model.Label {
			// Unknown models keep the raw spelling as label; pick one stably.
			mt.Model = summaryModel(r.Model)
		}
		mt.AddRecord(r)
		models[r.Model.ID] = mt

		if r.Unpriced {
			unpriced[r.Model.ID] = true
		}
	}

	for id := range unpriced {
		s.UnpricedModels = append(s.UnpricedModels, id)
	}
	sort.Strings(s.UnpricedModels)

	s.TotalCost = s.Totals.Cost
	s.TotalTokens = s.Totals.Tokens()
	return s
}

func summaryModel(m model.CanonicalModel) model.CanonicalModel {
	m.Raw = ""
	return m
}

// ByDay groups records by local calendar day in loc, newest first.
func ByDay(records []model.PricedUsageRecord, loc *time.Location) []model.DayUsage {
	if loc == nil {
		loc = time.Local
	}
	grouped := make(map[string]*model.DayUsage)

	for _, r := range records {
		if r.Empty() {
			continue
		}
		key := r.Timestamp.In(loc).Format(dateLayout)

		day, ok := grouped[key]
		if !ok {
			day = &model.DayUsage{Date: key, Models: make(map[string]model.Totals)}
			grouped[key] = day
		}
		day.Totals.AddRecord(r)
		mt := day.Models[r.Model.ID]
		mt.AddRecord(r)
		day.Models[r.Model.ID] = mt
	}

	results := make([]model.DayUsage, 0, len(grouped))
	for _, day := range grouped {
		results = append(results, *day)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Date > results[j].Date // Newest first
	})
	return results
}

// Stats summarizes a daily breakdown. today is the local date the current
// streak is counted back from; a streak that ended yesterday is still current.
func Stats(days []model.DayUsage, today string) model.Stats {
	st := model.Stats{Days: days, FavoriteModel: "N/A"}

	modelCost := make(map[string]model.Totals)
	active := make(map[string]bool, len(days))
	var first, last string
	for _, d := range days {
		if d.Totals.Records == 0 {
			continue
		}
		st.Totals.Add(d.Totals)
		active[d.Date] = true
		if first == "" || d.Date < first {
			first = d.Date
		}
		if d.Date > last {
			last = d.Date
		}
		for id, t := range d.Models {
			mt := modelCost[id]
			mt.Add(t)
			modelCost[id] = mt
		}
	}

	st.ActiveDays = len(active)
	if st.ActiveDays == 0 {
		return st
	}
	st.TotalDays = daysBetween(first, last) + 1
	st.FavoriteModel = favorite(modelCost)
	st.LongestStreak = longestStreak(active)
	st.CurrentStreak = currentStreak(active, today)
	return st
}

// favorite picks the model with the highest cost, then most tokens, then name.
func favorite(models map[string]model.Totals) string {
	var best string
	var bestTotals model.Totals
	for id, t := range models {
		if best == "" {
			best, bestTotals = id, t
			continue
		}
		c := t.Cost.Cmp(bestTotals.Cost)
		if c > 0 || (c == 0 && t.Tokens() > bestTotals.Tokens()) ||
			(c == 0 && t.Tokens() == bestTotals.Tokens() && id < best) {
			best, bestTotals = id, t
		}
	}
	return best
}

func longestStreak(active map[string]bool) int {
	longest := 0
	for date := range active {
		if active[shift(date, -1)] {
			continue // not the start of a run
		}
		n := 1
		for d := shift(date, 1); active[d]; d = shift(d, 1) {
			n++
		}
		if n > longest {
			longest = n
		}
	}
	return longest
}

func currentStreak(active map[string]bool, today string) int {
	d := today
	if !active[d] {
		d = shift(d, -1)
	}
	n := 0
	for ; active[d]; d = shift(d, -1) {
		n++
	}
	return n
}

func shift(date string, days int) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, days).Format(dateLayout)
}

func daysBetween(a, b string) int {
	ta, errA := time.Parse(dateLayout, a)
	tb, errB := time.Parse(dateLayout, b)
	if errA != nil || errB != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}
