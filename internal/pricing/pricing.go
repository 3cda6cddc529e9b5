// Package pricing resolves canonical models against a versioned pricing table.
package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/zhaobenny/tokdash/internal/model"
)

// Price attaches cost to a record. Models absent from the table are priced at
// zero and flagged Unpriced so callers can show "cost unknown" instead of $0.
func Price(rec model.RawUsageRecord, m model.CanonicalModel, table *Table) model.PricedUsageRecord {
	priced := model.PricedUsageRecord{
		RawUsageRecord: rec,
		Model:          m,
		Cost:           decimal.Zero,
		PricingVersion: table.Version,
	}

	rate, ok := table.Lookup(m.ID)
	if !ok {
		priced.Unpriced = true
		return priced
	}
	priced.Cost = CalculateCost(rec, rate)
	return priced
}

// CalculateCost returns Σ tokens × rate over the four token fields. The
// arithmetic is exact decimal so sums do not depend on record order.
func CalculateCost(rec model.RawUsageRecord, rate model.PriceRate) decimal.Decimal {
	in, out, cr, cw := rec.Tokens()
	cost := decimal.NewFromInt(in).Mul(decimal.NewFromFloat(rate.Input))
	cost = cost.Add(decimal.NewFromInt(out).Mul(decimal.NewFromFloat(rate.Output)))
	cost = cost.Add(decimal.NewFromInt(cr).Mul(decimal.NewFromFloat(rate.CacheRead)))
	cost = cost.Add(decimal.NewFromInt(cw).Mul(decimal.NewFromFloat(rate.CacheWrite)))
	return cost
}
