package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
	"github.com/zhaobenny/tokdash/internal/normalize"
)

// Table is a versioned set of per-token prices keyed by canonical model id.
// A Table is never modified after it is built; reloads produce a new one.
type Table struct {
	Version     string
	LastUpdated time.Time
	Currency    string

	rates   map[string]model.PriceRate
	aliases map[string]string
}

// Rate is a price in currency units per token.
type Rate struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// NewTable builds a table from per-token rates. Keys are normalized to canonical
// ids; when several names collapse to one id the shortest name wins, so an
// undated entry beats its dated snapshots and bare names beat provider paths.
func NewTable(version string, lastUpdated time.Time, rates map[string]Rate) *Table {
	t := &Table{
		Version:     version,
		LastUpdated: lastUpdated,
		Currency:    "USD",
		rates:       make(map[string]model.PriceRate, len(rates)),
		aliases:     make(map[string]string),
	}

	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		id := normalize.Key(name)
		if _, exists := t.rates[id]; exists {
			continue
		}
		r := rates[name]
		t.rates[id] = model.PriceRate{
			ModelID:    id,
			Input:      r.Input,
			Output:     r.Output,
			CacheRead:  r.CacheRead,
			CacheWrite: r.CacheWrite,
		}
	}
	return t
}

// Len returns the number of priced models.
func (t *Table) Len() int {
	return len(t.rates)
}

// Stale reports whether the table is older than maxAge. It is advisory only.
func (t *Table) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || t.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(t.LastUpdated) > maxAge
}

// Lookup returns the rate for a canonical model id, trying table aliases and
// suffix variants before giving up.
func (t *Table) Lookup(id string) (model.PriceRate, bool) {
	r, ok := t.lookup(id)
	if !ok {
		return model.PriceRate{}, false
	}
	r.Currency = t.Currency
	r.Version = t.Version
	return r, true
}

func (t *Table) lookup(id string) (model.PriceRate, bool) {
	candidates := []string{id}
	if key := normalize.Key(id); key != id {
		candidates = append(candidates, key)
	}
	for _, c := range candidates {
		if r, ok := t.rates[c]; ok {
			return r, true
		}
		if target, ok := t.aliases[c]; ok {
			if r, ok := t.rates[target]; ok {
				return r, true
			}
		}
	}
	return model.PriceRate{}, false
}

// tableFile is the tokdash pricing database format. Rates are per 1M tokens.
type tableFile struct {
	Version     string                     `json:"version"`
	LastUpdated string                     `json:"last_updated"`
	Currency    string                     `json:"currency"`
	Models      map[string]json.RawMessage `json:"models"`
	Aliases     map[string]string          `json:"aliases"`
}

type fileRate struct {
	Input      *float64 `json:"input"`
	Output     *float64 `json:"output"`
	CacheRead  *float64 `json:"cache_read"`
	CacheWrite *float64 `json:"cache_write"`
}

// liteLLMModel represents the pricing structure from LiteLLM
type liteLLMModel struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	CacheCreationCost  float64 `json:"cache_creation_input_token_cost"`
	CacheReadCost      float64 `json:"cache_read_input_token_cost"`
	LiteLLMProvider    string  `json:"litellm_provider"`
}

// ErrEmptyTable is returned when a pricing file contains no usable models.
var ErrEmptyTable = errors.New("pricing table has no models")

// LoadFile reads a pricing table from disk. Both the tokdash format and LiteLLM's
// model_prices_and_context_window.json are accepted.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing table: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat pricing table: %w", err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if t.LastUpdated.IsZero() {
		t.LastUpdated = info.ModTime()
	}
	if t.Version == "" {
		t.Version = "file-" + info.ModTime().UTC().Format("20060102T150405")
	}
	return t, nil
}

// Parse decodes a pricing table in either supported format.
func Parse(data []byte) (*Table, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["models"]; ok {
		return parseTableFile(data)
	}
	return parseLiteLLM(data)
}

func parseTableFile(data []byte) (*Table, error) {
	var f tableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	rates := make(map[string]Rate, len(f.Models))
	for name, raw := range f.Models {
		var fr fileRate
		if err := json.Unmarshal(raw, &fr); err != nil {
			// Comment and sentinel entries are not objects.
			continue
		}
		if fr.Input == nil && fr.Output == nil {
			continue
		}
		rates[name] = fr.perToken()
	}
	if len(rates) == 0 {
		return nil, ErrEmptyTable
	}

	var updated time.Time
	if f.LastUpdated != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, f.LastUpdated); err == nil {
				updated = ts
				break
			}
		}
	}

	t := NewTable(f.Version, updated, rates)
	if f.Currency != "" {
		t.Currency = f.Currency
	}
	for from, to := range f.Aliases {
		from = strings.TrimSpace(strings.ToLower(from))
		target := normalize.Key(to)
		if from == "" || target == "unknown" {
			continue
		}
		t.aliases[from] = target
		t.aliases[normalize.Key(from)] = target
	}
	return t, nil
}

// perToken converts per-1M rates. A missing cache read rate defaults to a tenth
// of input, a missing cache write rate to the input rate.
func (fr fileRate) perToken() Rate {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	in := deref(fr.Input)
	r := Rate{
		Input:      in / 1_000_000,
		Output:     deref(fr.Output) / 1_000_000,
		CacheRead:  in * 0.1 / 1_000_000,
		CacheWrite: in / 1_000_000,
	}
	if fr.CacheRead != nil {
		r.CacheRead = *fr.CacheRead / 1_000_000
	}
	if fr.CacheWrite != nil {
		r.CacheWrite = *fr.CacheWrite / 1_000_000
	}
	return r
}

func parseLiteLLM(data []byte) (*Table, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	rates := make(map[string]Rate, len(raw))
	for name, msg := range raw {
		var m liteLLMModel
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		if m.InputCostPerToken == 0 && m.OutputCostPerToken == 0 {
			continue
		}
		rates[name] = Rate{
			Input:      m.InputCostPerToken,
			Output:     m.OutputCostPerToken,
			CacheRead:  m.CacheReadCost,
			CacheWrite: m.CacheCreationCost,
		}
	}
	if len(rates) == 0 {
		return nil, ErrEmptyTable
	}
	return NewTable("", time.Time{}, rates), nil
}
