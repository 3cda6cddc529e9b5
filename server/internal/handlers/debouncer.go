package handlers

import (
	"context"
	"os"
	"sync"
	"time"
)

// Debouncer delays an action until no new request arrived for delay, so a
// burst of triggers runs it once.
type Debouncer struct {
	delay      time.Duration
	mu         sync.Mutex
	generation int
	pending    bool
}

// NewDebouncer creates a debouncer with the specified delay
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule queues fn, resetting the timer if a run is already pending. Only
// the fn of the last Schedule in a burst runs.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Bump generation (invalidates old timer)
	d.generation++
	d.pending = true
	gen := d.generation
	time.AfterFunc(d.delay, func() {
		d.flush(gen, fn)
	})
}

func (d *Debouncer) flush(generation int, fn func()) {
	d.mu.Lock()
	if !d.pending || d.generation != generation {
		// Stale timer or already flushed
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	fn()
}

// WatchPricing polls the configured pricing file and reloads it after it
// stops changing. It returns when ctx is done.
func (h *Handler) WatchPricing(ctx context.Context, interval, settle time.Duration) {
	if h.pricingFile == "" {
		return
	}

	d := NewDebouncer(settle)
	last := modTime(h.pricingFile)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mt := modTime(h.pricingFile)
			if mt.IsZero() || mt.Equal(last) {
				continue
			}
			last = mt
			d.Schedule(func() {
				t, err := h.engine.ReloadPricing(h.pricingFile)
				if err != nil {
					h.log.Warn("pricing reload failed", "file", h.pricingFile, "error", err)
					return
				}
				h.log.Info("pricing reloaded", "file", h.pricingFile, "version", t.Version)
			})
		}
	}
}

func modTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
