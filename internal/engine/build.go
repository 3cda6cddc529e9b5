package engine

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zhaobenny/tokdash/internal/config"
	"github.com/zhaobenny/tokdash/internal/model"
	"github.com/zhaobenny/tokdash/internal/normalize"
	"github.com/zhaobenny/tokdash/internal/pricing"
	"github.com/zhaobenny/tokdash/internal/source"
)

// FromConfig builds an engine with every source registered according to cfg.
// The returned close function releases the normalizer memo.
func FromConfig(cfg *config.Config, log *slog.Logger) (*Engine, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("timezone: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, fmt.Errorf("home directory: %w", err)
	}

	reg := source.NewRegistry()
	for _, id := range model.AllSources {
		sc := cfg.Source(id)
		root := sc.Root
		if root == "" {
			root = source.DefaultRoot(id, home)
		}
		reg.Register(source.NewScanner(id, loc, sc.Exclude), root, sc.IsEnabled())
	}

	table := pricing.Embedded()
	if cfg.Pricing.File != "" {
		t, err := pricing.LoadFile(cfg.Pricing.File)
		if err != nil {
			log.Warn("using embedded pricing", "file", cfg.Pricing.File, "error", err)
		} else {
			table = t
		}
	}

	memo, err := normalize.NewMemo(cfg.Cache.MemoSize)
	if err != nil {
		return nil, nil, fmt.Errorf("normalizer memo: %w", err)
	}

	e := New(Options{
		Registry:    reg,
		Pricing:     pricing.NewStore(table),
		Memo:        memo,
		Location:    loc,
		TTL:         cfg.Cache.TTL,
		StaleAfter:  cfg.Pricing.StaleAfter,
		Concurrency: cfg.Scan.Concurrency,
		Logger:      log,
	})
	return e, memo.Close, nil
}
