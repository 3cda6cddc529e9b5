package source

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

// Entry is a registered scanner with the root it reads.
type Entry struct {
	Scanner Scanner
	Root    string
	Enabled bool
}

// Registry maps sources to their scanners.
type Registry struct {
	mu      sync.RWMutex
	entries map[model.SourceID]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[model.SourceID]Entry)}
}

// Register adds or replaces the scanner for s.Source().
func (r *Registry) Register(s Scanner, root string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.Source()] = Entry{Scanner: s, Root: root, Enabled: enabled}
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id model.SourceID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Enabled returns the enabled entries among ids, sorted by source.
func (r *Registry) Enabled(ids []model.SourceID) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, id := range model.SortSources(ids) {
		if e, ok := r.entries[id]; ok && e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// All returns every registered entry sorted by source.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Scanner.Source() < out[j].Scanner.Source()
	})
	return out
}

// DefaultRoot returns the conventional data location of a source below home.
func DefaultRoot(id model.SourceID, home string) string {
	switch id {
	case model.SourceClaude:
		return filepath.Join(home, ".claude", "projects")
	case model.SourceCodex:
		return filepath.Join(home, ".codex", "sessions")
	case model.SourceGeminiCLI:
		return filepath.Join(home, ".gemini")
	case model.SourceOpenCode:
		return filepath.Join(home, ".local", "share", "opencode")
	case model.SourceOpenClaw:
		return filepath.Join(home, ".openclaw")
	case model.SourceFallback:
		return filepath.Join(home, ".tokdash", "tokscale.json")
	}
	return ""
}

// NewScanner returns the scanner implementation for id.
func NewScanner(id model.SourceID, loc *time.Location, exclude []string) Scanner {
	switch id {
	case model.SourceClaude:
		return Claude{Location: loc}
	case model.SourceCodex:
		return Codex{Location: loc}
	case model.SourceGeminiCLI:
		return GeminiCLI{Location: loc}
	case model.SourceOpenCode:
		return OpenCode{}
	case model.SourceOpenClaw:
		return OpenClaw{Location: loc}
	case model.SourceFallback:
		return Tokscale{Location: loc, Exclude: exclude}
	}
	return nil
}
