package normalize

import (
	"github.com/dgraph-io/ristretto/v2"
	"github.com/zhaobenny/tokdash/internal/model"
)

// Memo caches Normalize results. Scans repeat the same few model strings
// thousands of times, so the regex pipeline only runs once per distinct string.
type Memo struct {
	c *ristretto.Cache[string, model.CanonicalModel]
}

// NewMemo creates a memo holding up to maxEntries results.
func NewMemo(maxEntries int64) (*Memo, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, model.CanonicalModel]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Memo{c: c}, nil
}

// Normalize returns the cached mapping for (raw, source), computing it on a miss.
// Ristretto admits entries asynchronously, so a recent Set may still miss.
func (m *Memo) Normalize(raw string, source model.SourceID) model.CanonicalModel {
	key := string(source) + "\x00" + raw
	if cm, ok := m.c.Get(key); ok {
		return cm
	}
	cm := Normalize(raw, source)
	m.c.Set(key, cm, 1)
	return cm
}

// Close releases the cache goroutines.
func (m *Memo) Close() {
	m.c.Close()
}
