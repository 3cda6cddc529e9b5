package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)}
}

var start = time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)

func summaryKey(version string) Key {
	return NewKey("today", []model.SourceID{model.SourceCodex, model.SourceClaude}, version, start)
}

func counting(calls *atomic.Int32) func(context.Context) (*model.UsageSummary, error) {
	return func(context.Context) (*model.UsageSummary, error) {
		n := calls.Add(1)
		return &model.UsageSummary{TotalTokens: int64(n)}, nil
	}
}

func TestGetOrComputeTTL(t *testing.T) {
	clock := newClock()
	c := New[*model.UsageSummary](clock.Now)
	ctx := context.Background()
	var calls atomic.Int32

	first, err := c.GetOrCompute(ctx, summaryKey("v1"), 2*time.Minute, counting(&calls))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(119 * time.Second)
	second, err := c.GetOrCompute(ctx, summaryKey("v1"), 2*time.Minute, counting(&calls))
	if err != nil {
		t.Fatal(err)
	}
	if second != first || calls.Load() != 1 {
		t.Fatalf("expected cached value within ttl, calls = %d", calls.Load())
	}

	clock.Advance(2 * time.Second)
	third, err := c.GetOrCompute(ctx, summaryKey("v1"), 2*time.Minute, counting(&calls))
	if err != nil {
		t.Fatal(err)
	}
	if third == first || calls.Load() != 2 {
		t.Fatalf("expected recompute after ttl, calls = %d", calls.Load())
	}
}

func TestKeyIgnoresSourceOrder(t *testing.T) {
	a := NewKey("today", []model.SourceID{model.SourceCodex, model.SourceClaude}, "v1", start)
	b := NewKey("Today", []model.SourceID{model.SourceClaude, model.SourceCodex, model.SourceClaude}, "v1", start.In(time.FixedZone("X", 3600)))
	if a != b {
		t.Errorf("%v != %v", a, b)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New[*model.UsageSummary](newClock().Now)
	release := make(chan struct{})
	var calls atomic.Int32

	compute := func(context.Context) (*model.UsageSummary, error) {
		calls.Add(1)
		<-release
		return &model.UsageSummary{}, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]*model.UsageSummary, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			v, err := c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, compute)
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different result", i)
		}
	}
}

func TestGetOrComputeStaggeredCallers(t *testing.T) {
	for round := 0; round < 20; round++ {
		c := New[*model.UsageSummary](newClock().Now)
		var calls atomic.Int32
		compute := func(context.Context) (*model.UsageSummary, error) {
			calls.Add(1)
			time.Sleep(time.Millisecond)
			return &model.UsageSummary{}, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				time.Sleep(time.Duration(i%20) * 100 * time.Microsecond)
				if _, err := c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, compute); err != nil {
					t.Error(err)
				}
			}(i)
		}
		wg.Wait()

		if got := calls.Load(); got != 1 {
			t.Fatalf("round %d: compute ran %d times within ttl, want 1", round, got)
		}
	}
}

func TestGetOrComputeCallerTimeout(t *testing.T) {
	c := New[*model.UsageSummary](newClock().Now)
	release := make(chan struct{})
	done := make(chan struct{})

	compute := func(ctx context.Context) (*model.UsageSummary, error) {
		defer close(done)
		<-release
		if ctx.Err() != nil {
			t.Error("compute context was cancelled with the caller")
		}
		return &model.UsageSummary{TotalTokens: 7}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.GetOrCompute(ctx, summaryKey("v1"), time.Minute, compute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	close(release)
	<-done

	// The abandoned computation is stored for the next caller.
	var calls atomic.Int32
	var v *model.UsageSummary
	var err error
	for i := 0; i < 100; i++ {
		if c.Len() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	v, err = c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, counting(&calls))
	if err != nil {
		t.Fatal(err)
	}
	if v.TotalTokens != 7 || calls.Load() != 0 {
		t.Errorf("got %+v after %d computes, want stored result", v, calls.Load())
	}
}

func TestGetOrComputeErrorsAreNotCached(t *testing.T) {
	c := New[*model.UsageSummary](newClock().Now)
	boom := errors.New("boom")
	fail := func(context.Context) (*model.UsageSummary, error) { return nil, boom }

	if _, err := c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, fail); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("error result was stored")
	}

	var calls atomic.Int32
	if _, err := c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, counting(&calls)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGetOrComputeServesStaleOnError(t *testing.T) {
	clock := newClock()
	c := New[*model.UsageSummary](clock.Now)
	var calls atomic.Int32

	old, err := c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, counting(&calls))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(5 * time.Minute)
	boom := errors.New("scan failed")
	got, err := c.GetOrCompute(context.Background(), summaryKey("v1"), time.Minute, func(context.Context) (*model.UsageSummary, error) {
		return nil, boom
	})

	var stale *StaleError
	if !errors.As(err, &stale) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want StaleError wrapping boom", err)
	}
	if got != old {
		t.Error("expected the expired value")
	}
}

func TestFlush(t *testing.T) {
	c := New[*model.UsageSummary](newClock().Now)
	var calls atomic.Int32
	ctx := context.Background()

	if _, err := c.GetOrCompute(ctx, summaryKey("v1"), time.Minute, counting(&calls)); err != nil {
		t.Fatal(err)
	}
	c.Flush()
	if _, err := c.GetOrCompute(ctx, summaryKey("v1"), time.Minute, counting(&calls)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want recompute after flush", calls.Load())
	}
}

func TestFlushVersion(t *testing.T) {
	c := New[*model.UsageSummary](newClock().Now)
	var calls atomic.Int32
	ctx := context.Background()

	for _, v := range []string{"v1", "v2"} {
		if _, err := c.GetOrCompute(ctx, summaryKey(v), time.Minute, counting(&calls)); err != nil {
			t.Fatal(err)
		}
	}
	c.FlushVersion("v2")
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	if _, err := c.GetOrCompute(ctx, summaryKey("v2"), time.Minute, counting(&calls)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, v2 entry should have survived", calls.Load())
	}
}

func TestNewWindowReplacesOldEntry(t *testing.T) {
	c := New[*model.UsageSummary](newClock().Now)
	var calls atomic.Int32
	ctx := context.Background()

	yesterday := NewKey("today", []model.SourceID{model.SourceClaude}, "v1", start.AddDate(0, 0, -1))
	today := NewKey("today", []model.SourceID{model.SourceClaude}, "v1", start)

	if _, err := c.GetOrCompute(ctx, yesterday, time.Minute, counting(&calls)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrCompute(ctx, today, time.Minute, counting(&calls)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || c.Len() != 1 {
		t.Errorf("calls = %d, len = %d", calls.Load(), c.Len())
	}
}
