package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rnovak/newswatch/internal/deliver"
	"github.com/rnovak/newswatch/internal/source"
	"github.com/rnovak/newswatch/internal/store"
)

type acceptAll struct{}

func (acceptAll) Broadcast(string) bool { return true }
func (acceptAll) IsReady() bool         { return true }

func testOptions() Options {
	return Options{
		BaseInterval: time.Minute,
		MaxInterval:  3 * time.Minute,
		Increment:    30 * time.Second,
	}
}

func newAdapter(t *testing.T, name string, weight float64, fetch source.FetchFunc) *source.Adapter {
	t.Helper()
	a := source.New(source.Spec{
		Name:       name,
		Fetch:      fetch,
		Configured: true,
		Retention:  24 * time.Hour,
		Lookback:   24 * time.Hour,
	}, true, weight, store.NewSeenStore(t.TempDir()), nil)
	a.Initialize(context.Background())
	return a
}

func emptyFetch(ctx context.Context) ([]source.Candidate, error) {
	return nil, nil
}

func yieldOnce(name string) source.FetchFunc {
	n := 0
	return func(ctx context.Context) ([]source.Candidate, error) {
		n++
		return []source.Candidate{{
			ID:          name,
			Title:       "Headline from " + name,
			URL:         "https://x/" + name,
			PublishedAt: time.Now().Add(-time.Hour),
		}}, nil
	}
}

func TestPickRespectsWeights(t *testing.T) {
	heavy := newAdapter(t, "heavy", 3, emptyFetch)
	light := newAdapter(t, "light", 1, emptyFetch)
	s := New([]*source.Adapter{heavy, light}, nil, testOptions())

	const trials = 4000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		counts[s.pick().Name()]++
	}

	ratio := float64(counts["heavy"]) / float64(trials)
	if ratio < 0.68 || ratio > 0.82 {
		t.Fatalf("heavy picked %.2f of trials, want roughly 0.75", ratio)
	}
}

func TestPickSkipsZeroWeight(t *testing.T) {
	zero := newAdapter(t, "zero", 0, emptyFetch)
	one := newAdapter(t, "one", 1, emptyFetch)
	s := New([]*source.Adapter{zero, one}, nil, testOptions())

	for i := 0; i < 200; i++ {
		if got := s.pick(); got.Name() != "one" {
			t.Fatalf("pick() = %s, want one (zero weight must never win)", got.Name())
		}
	}
}

func TestPickSkipsDisabled(t *testing.T) {
	off := newAdapter(t, "off", 5, emptyFetch)
	off.SetEnabled(false)
	on := newAdapter(t, "on", 1, emptyFetch)
	s := New([]*source.Adapter{off, on}, nil, testOptions())

	for i := 0; i < 50; i++ {
		if got := s.pick(); got.Name() != "on" {
			t.Fatalf("pick() = %s, want on", got.Name())
		}
	}
}

func TestPickNoEligibleSources(t *testing.T) {
	zero := newAdapter(t, "zero", 0, emptyFetch)
	s := New([]*source.Adapter{zero}, nil, testOptions())
	if got := s.pick(); got != nil {
		t.Fatalf("pick() = %s, want nil when nothing is eligible", got.Name())
	}
}

func TestEmptyCycleWidensInterval(t *testing.T) {
	a := newAdapter(t, "quiet", 1, emptyFetch)
	gate := deliver.NewGate(acceptAll{}, nil)
	s := New([]*source.Adapter{a}, gate, testOptions())

	if delivered := s.RunOnce(context.Background()); delivered {
		t.Fatal("RunOnce delivered on an empty fetch")
	}
	if got := s.CurrentInterval(); got != 90*time.Second {
		t.Fatalf("interval after empty cycle = %s, want 90s", got)
	}

	// Further empty cycles keep adding the increment up to the cap.
	for i := 0; i < 10; i++ {
		s.RunOnce(context.Background())
	}
	if got := s.CurrentInterval(); got != 3*time.Minute {
		t.Fatalf("interval = %s, want capped at 3m", got)
	}
}

func TestDeliveredCycleResetsInterval(t *testing.T) {
	a := newAdapter(t, "busy", 1, yieldOnce("busy"))
	gate := deliver.NewGate(acceptAll{}, nil)
	s := New([]*source.Adapter{a}, gate, testOptions())

	// Widen first so the reset is observable.
	s.mu.Lock()
	s.current = 2 * time.Minute
	s.mu.Unlock()

	if delivered := s.RunOnce(context.Background()); !delivered {
		t.Fatal("RunOnce did not deliver")
	}
	if got := s.CurrentInterval(); got != time.Minute {
		t.Fatalf("interval after delivery = %s, want reset to base 1m", got)
	}

	status := s.Snapshot()
	if status.Delivered != 1 || status.Cycles != 1 {
		t.Fatalf("status = %+v, want 1 cycle 1 delivered", status)
	}
	if status.LastSuccess.IsZero() {
		t.Fatal("LastSuccess not recorded")
	}
}

func TestAdapterErrorCountsAsEmpty(t *testing.T) {
	failing := newAdapter(t, "broken", 1, func(ctx context.Context) ([]source.Candidate, error) {
		return nil, context.DeadlineExceeded
	})
	gate := deliver.NewGate(acceptAll{}, nil)
	s := New([]*source.Adapter{failing}, gate, testOptions())

	if delivered := s.RunOnce(context.Background()); delivered {
		t.Fatal("failed fetch reported as delivered")
	}
	if got := s.CurrentInterval(); got != 90*time.Second {
		t.Fatalf("interval after failed cycle = %s, want 90s", got)
	}
}

func TestSweepStopsAtFirstYield(t *testing.T) {
	calls := map[string]int{}
	counting := func(name string, yield bool) source.FetchFunc {
		return func(ctx context.Context) ([]source.Candidate, error) {
			calls[name]++
			if !yield {
				return nil, nil
			}
			return []source.Candidate{{
				ID:          name,
				Title:       "Headline from " + name,
				URL:         "https://x/" + name,
				PublishedAt: time.Now().Add(-time.Hour),
			}}, nil
		}
	}

	quiet := newAdapter(t, "quiet", 1, counting("quiet", false))
	busy := newAdapter(t, "busy", 1, counting("busy", true))
	gate := deliver.NewGate(acceptAll{}, nil)
	s := New([]*source.Adapter{quiet, busy}, gate, testOptions())

	if !s.sweepCycle(context.Background()) {
		t.Fatal("sweep found nothing, want one delivery")
	}
	if calls["busy"] != 1 {
		t.Fatalf("busy fetched %d times, want 1", calls["busy"])
	}
	// quiet may or may not be tried first depending on shuffle order, but
	// never more than once.
	if calls["quiet"] > 1 {
		t.Fatalf("quiet fetched %d times, want at most 1", calls["quiet"])
	}
}

func TestTriggerWakesRunLoop(t *testing.T) {
	a := newAdapter(t, "busy", 1, yieldOnce("busy"))
	gate := deliver.NewGate(acceptAll{}, nil)
	opts := testOptions()
	opts.BaseInterval = time.Hour // never fires on its own in this test
	opts.MaxInterval = 2 * time.Hour
	s := New([]*source.Adapter{a}, gate, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Trigger()
	deadline := time.After(2 * time.Second)
	for s.Snapshot().Delivered == 0 {
		select {
		case <-deadline:
			t.Fatal("trigger did not produce a delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	if got := s.Snapshot().State; got != StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
}

func TestTriggerSourceRunsNamedAdapter(t *testing.T) {
	calls := map[string]int{}
	counted := func(name string) source.FetchFunc {
		return func(ctx context.Context) ([]source.Candidate, error) {
			calls[name]++
			return nil, nil
		}
	}
	social := newAdapter(t, "social", 3, counted("social"))
	market := newAdapter(t, "market", 1, counted("market"))
	s := New([]*source.Adapter{social, market}, deliver.NewGate(acceptAll{}, nil), testOptions())

	s.runCycle(context.Background(), kickReq{kind: kickSingle, source: "market"})

	if calls["market"] != 1 || calls["social"] != 0 {
		t.Fatalf("calls = %v, want only market fetched", calls)
	}
}

func TestTriggerSourceIgnoresDisabled(t *testing.T) {
	quiet := newAdapter(t, "quiet", 1, emptyFetch)
	quiet.SetEnabled(false)
	s := New([]*source.Adapter{quiet}, deliver.NewGate(acceptAll{}, nil), testOptions())

	if s.runCycle(context.Background(), kickReq{kind: kickSingle, source: "quiet"}) {
		t.Fatal("disabled source delivered")
	}
	if s.runCycle(context.Background(), kickReq{kind: kickSingle, source: "nope"}) {
		t.Fatal("unknown source delivered")
	}
}

// Named fetch requests arrive from chat commands on other goroutines; they
// must execute on the run loop so the stores only ever see one cycle at a
// time.
func TestNamedTriggersNeverOverlapCycles(t *testing.T) {
	var inFlight, overlaps, calls atomic.Int32
	fetch := func(ctx context.Context) ([]source.Candidate, error) {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		calls.Add(1)
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}
	a := newAdapter(t, "slow", 1, fetch)
	opts := testOptions()
	opts.BaseInterval = 5 * time.Millisecond
	s := New([]*source.Adapter{a}, deliver.NewGate(acceptAll{}, nil), opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Hammer the command path while the timer path runs.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.TriggerSource("slow")
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if calls.Load() == 0 {
		t.Fatal("no fetches ran")
	}
	if n := overlaps.Load(); n != 0 {
		t.Fatalf("%d overlapping fetches, want strict one-at-a-time", n)
	}
}
