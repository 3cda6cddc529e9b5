// Package engine answers usage queries: it scans the enabled sources, merges
// and prices their records and caches the aggregated result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/zhaobenny/tokdash/internal/aggregator"
	"github.com/zhaobenny/tokdash/internal/cache"
	"github.com/zhaobenny/tokdash/internal/merge"
	"github.com/zhaobenny/tokdash/internal/model"
	"github.com/zhaobenny/tokdash/internal/normalize"
	"github.com/zhaobenny/tokdash/internal/period"
	"github.com/zhaobenny/tokdash/internal/pricing"
	"github.com/zhaobenny/tokdash/internal/source"
	"golang.org/x/sync/errgroup"
)

// ErrNoData is returned when no requested source could be read. A period
// without usage is not an error; it yields an all-zero summary.
var ErrNoData = errors.New("no usage data available")

// Options configures an Engine. Registry and Pricing are required.
type Options struct {
	Registry *source.Registry
	Pricing  *pricing.Store
	Memo     *normalize.Memo // nil normalizes without memoization

	Clock       func() time.Time
	Location    *time.Location
	TTL         time.Duration
	StaleAfter  time.Duration
	Concurrency int
	Logger      *slog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	registry    *source.Registry
	pricing     *pricing.Store
	memo        *normalize.Memo
	now         func() time.Time
	loc         *time.Location
	ttl         time.Duration
	staleAfter  time.Duration
	concurrency int
	log         *slog.Logger

	summaries *cache.Cache[*model.UsageSummary]
	stats     *cache.Cache[*model.Stats]
}

// New creates an engine. Replacing the pricing table flushes its caches.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		registry:    opts.Registry,
		pricing:     opts.Pricing,
		memo:        opts.Memo,
		now:         opts.Clock,
		loc:         opts.Location,
		ttl:         opts.TTL,
		staleAfter:  opts.StaleAfter,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		summaries:   cache.New[*model.UsageSummary](opts.Clock),
		stats:       cache.New[*model.Stats](opts.Clock),
	}
	e.pricing.OnReplace(func(old, next *pricing.Table) {
		e.summaries.Flush()
		e.stats.Flush()
		e.log.Info("pricing table replaced", "old_version", old.Version, "new_version", next.Version, "models", next.Len())
	})
	return e
}

// GetSummary returns the usage summary of periodToken over sources. An empty
// source set means every source.
func (e *Engine) GetSummary(ctx context.Context, periodToken string, sources []model.SourceID) (*model.UsageSummary, error) {
	w, err := period.Resolve(periodToken, e.now(), e.loc)
	if err != nil {
		return nil, err
	}
	label, err := period.Canonical(periodToken)
	if err != nil {
		return nil, err
	}
	sources = e.sourceSet(sources)
	table := e.pricing.Current()
	key := cache.NewKey(label, sources, table.Version, w.Start)

	sum, err := e.summaries.GetOrCompute(ctx, key, e.ttl, func(ctx context.Context) (*model.UsageSummary, error) {
		e.log.Debug("cache miss", "key", key.String())
		return e.computeSummary(ctx, key.Period, w, sources, table)
	})
	return served(e, sum, err, key)
}

// GetStats returns the daily breakdown and streak stats of a calendar year, or
// of the last 365 days when year is 0.
func (e *Engine) GetStats(ctx context.Context, year int, sources []model.SourceID) (*model.Stats, error) {
	now := e.now()
	label := "365days"
	var w model.Window
	if year == 0 {
		var err error
		if w, err = period.Resolve(label, now, e.loc); err != nil {
			return nil, err
		}
	} else {
		label = "year:" + strconv.Itoa(year)
		w = period.Year(year, e.loc)
	}
	sources = e.sourceSet(sources)
	table := e.pricing.Current()
	key := cache.NewKey(label, sources, table.Version, w.Start)

	st, err := e.stats.GetOrCompute(ctx, key, e.ttl, func(ctx context.Context) (*model.Stats, error) {
		e.log.Debug("cache miss", "key", key.String())
		return e.computeStats(ctx, w, sources, table)
	})
	return served(e, st, err, key)
}

// ReloadPricing loads a pricing table from path and makes it current. The
// previous table stays in use when loading fails.
func (e *Engine) ReloadPricing(path string) (*pricing.Table, error) {
	t, err := e.pricing.Reload(path)
	if err != nil {
		return nil, fmt.Errorf("reload pricing: %w", err)
	}
	return t, nil
}

// Pricing returns the current pricing table.
func (e *Engine) Pricing() *pricing.Table {
	return e.pricing.Current()
}

// PricingStale reports whether the current table is older than the configured maximum age.
func (e *Engine) PricingStale() bool {
	return e.pricing.Current().Stale(e.now(), e.staleAfter)
}

// Sources returns every registered source with its root and state.
func (e *Engine) Sources() []source.Entry {
	return e.registry.All()
}

// Location returns the time zone used for day boundaries.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// served turns a stale cache hit into a successful response.
func served[V any](e *Engine, v V, err error, key cache.Key) (V, error) {
	var stale *cache.StaleError
	if errors.As(err, &stale) {
		e.log.Warn("serving stale result", "key", key.String(), "stored_at", stale.StoredAt, "error", stale.Err)
		return v, nil
	}
	return v, err
}

func (e *Engine) sourceSet(ids []model.SourceID) []model.SourceID {
	if len(ids) == 0 {
		return model.SortSources(model.AllSources)
	}
	return model.SortSources(ids)
}

func (e *Engine) computeSummary(ctx context.Context, periodLabel string, w model.Window, sources []model.SourceID, table *pricing.Table) (*model.UsageSummary, error) {
	priced, sourceErrs, err := e.collect(ctx, w, sources, table)
	if err != nil {
		return nil, err
	}

	sum := aggregator.Aggregate(priced, w)
	now := e.now()
	sum.Period = periodLabel
	sum.PricingVersion = table.Version
	sum.PricingStale = table.Stale(now, e.staleAfter)
	sum.SourceErrors = sourceErrs
	sum.ComputedAt = now.UTC()
	if sum.PricingStale {
		e.log.Warn("pricing table is stale", "version", table.Version, "last_updated", table.LastUpdated)
	}
	return &sum, nil
}

func (e *Engine) computeStats(ctx context.Context, w model.Window, sources []model.SourceID, table *pricing.Table) (*model.Stats, error) {
	priced, sourceErrs, err := e.collect(ctx, w, sources, table)
	if err != nil {
		return nil, err
	}

	today := e.now().In(e.loc).Format("2006-01-02")
	st := aggregator.Stats(aggregator.ByDay(priced, e.loc), today)
	st.Window = w
	st.PricingVersion = table.Version
	st.SourceErrors = sourceErrs
	return &st, nil
}

// collect scans sources, merges the streams and prices every record inside w
// against table.
func (e *Engine) collect(ctx context.Context, w model.Window, sources []model.SourceID, table *pricing.Table) ([]model.PricedUsageRecord, map[model.SourceID]string, error) {
	streams, sourceErrs, err := e.scan(ctx, sources)
	if err != nil {
		return nil, nil, err
	}

	merged := merge.Merge(streams...)
	priced := make([]model.PricedUsageRecord, 0, len(merged))
	for _, r := range merged {
		if !w.Contains(r.Timestamp) {
			continue
		}
		priced = append(priced, pricing.Price(r, e.normalize(r.RawModel, r.Source), table))
	}
	return priced, sourceErrs, nil
}

// scan runs the enabled scanners concurrently. A failing scanner is reported in
// the returned map and does not affect the others.
func (e *Engine) scan(ctx context.Context, sources []model.SourceID) ([][]model.RawUsageRecord, map[model.SourceID]string, error) {
	entries := e.registry.Enabled(sources)
	streams := make([][]model.RawUsageRecord, len(entries))
	errs := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, ent := range entries {
		g.Go(func() error {
			start := time.Now()
			recs, err := ent.Scanner.Scan(ctx, ent.Root)
			streams[i] = recs
			if err != nil {
				errs[i] = &source.ScanError{Source: ent.Scanner.Source(), Err: err}
			}
			e.log.Debug("scanned source", "source", ent.Scanner.Source(), "records", len(recs), "duration", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	var sourceErrs map[model.SourceID]string
	succeeded, records := 0, 0
	for i, err := range errs {
		records += len(streams[i])
		if err == nil {
			succeeded++
			continue
		}
		if sourceErrs == nil {
			sourceErrs = make(map[model.SourceID]string)
		}
		id := entries[i].Scanner.Source()
		sourceErrs[id] = err.Error()
		e.log.Warn("source scan failed", "source", id, "records", len(streams[i]), "error", err)
	}

	if succeeded == 0 && records == 0 {
		if len(entries) == 0 {
			return nil, nil, fmt.Errorf("%w: no enabled source among %s", ErrNoData, model.JoinSources(sources))
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrNoData, errors.Join(errs...))
	}
	return streams, sourceErrs, nil
}

func (e *Engine) normalize(raw string, id model.SourceID) model.CanonicalModel {
	if e.memo != nil {
		return e.memo.Normalize(raw, id)
	}
	return normalize.Normalize(raw, id)
}
