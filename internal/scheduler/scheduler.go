// Package scheduler drives the polling loop: pick a source, fetch, deliver,
// adapt the interval.
package scheduler

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
	"github.com/rnovak/newswatch/internal/deliver"
	"github.com/rnovak/newswatch/internal/source"
)

// Scheduler states.
const (
	StateIdle       = "idle"
	StateFetching   = "fetching"
	StateDelivering = "delivering"
	StateSleeping   = "sleeping"
	StateStopped    = "stopped"
)

// Options fixes the interval policy.
type Options struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Increment    time.Duration

	// SweepSchedules are cron expressions; each firing forces one
	// shuffle-and-sweep cycle over all enabled sources.
	SweepSchedules []string
}

// Status is the scheduler snapshot served by the control surface.
type Status struct {
	State           string    `json:"state"`
	BaseInterval    string    `json:"baseInterval"`
	CurrentInterval string    `json:"currentInterval"`
	MaxInterval     string    `json:"maxInterval"`
	LastSuccess     time.Time `json:"lastSuccess,omitempty"`
	Cycles          int64     `json:"cycles"`
	Delivered       int64     `json:"delivered"`
}

type kind int

const (
	kickSingle kind = iota
	kickSweep
)

// kickReq is one forced cycle request. A non-empty source names the adapter
// to run instead of drawing one.
type kickReq struct {
	kind   kind
	source string
}

// Scheduler runs one cycle at a time: the weighted-random single-pick
// policy selects one enabled source per tick, and a delivered candidate
// resets the interval while an empty cycle widens it. Cycles never overlap;
// every fetch-filter-deliver pass completes before the next timer is armed.
type Scheduler struct {
	adapters []*source.Adapter
	gate     *deliver.Gate

	opts Options
	rng  *rand.Rand
	cron *rcron.Cron

	kick chan kickReq

	mu          sync.Mutex
	state       string
	current     time.Duration
	lastSuccess time.Time
	cycles      int64
	delivered   int64
}

func New(adapters []*source.Adapter, gate *deliver.Gate, opts Options) *Scheduler {
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = 3 * time.Minute
	}
	if opts.MaxInterval < opts.BaseInterval {
		opts.MaxInterval = opts.BaseInterval
	}
	if opts.Increment <= 0 {
		opts.Increment = 30 * time.Second
	}
	return &Scheduler{
		adapters: adapters,
		gate:     gate,
		opts:     opts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		kick:     make(chan kickReq, 1),
		state:    StateIdle,
		current:  opts.BaseInterval,
	}
}

// Run blocks until ctx is cancelled. The first cycle fires after the base
// interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.startSweeps()
	defer s.stopSweeps()

	log.Printf("[scheduler] started, base=%s max=%s increment=%s",
		s.opts.BaseInterval, s.opts.MaxInterval, s.opts.Increment)

	for {
		s.setState(StateSleeping)
		timer := time.NewTimer(s.interval())

		select {
		case <-timer.C:
			s.runCycle(ctx, kickReq{kind: kickSingle})
		case req := <-s.kick:
			timer.Stop()
			s.runCycle(ctx, req)
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateStopped)
			log.Printf("[scheduler] stopped")
			return
		}
	}
}

// Trigger forces an immediate single-pick cycle (manual fetch command).
func (s *Scheduler) Trigger() {
	s.enqueue(kickReq{kind: kickSingle})
}

// TriggerSweep forces an immediate full-sweep cycle.
func (s *Scheduler) TriggerSweep() {
	s.enqueue(kickReq{kind: kickSweep})
}

// TriggerSource forces a cycle that runs only the named adapter. Like every
// other cycle it executes on the run loop, so the stores see one cycle at a
// time no matter where the request came from.
func (s *Scheduler) TriggerSource(name string) {
	s.enqueue(kickReq{kind: kickSingle, source: name})
}

func (s *Scheduler) enqueue(req kickReq) {
	select {
	case s.kick <- req:
	default:
	}
}

// RunOnce executes one single-pick cycle synchronously. Used by the manual
// fetch command; the interval policy applies the same way.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	return s.runCycle(ctx, kickReq{kind: kickSingle})
}

func (s *Scheduler) runCycle(ctx context.Context, req kickReq) bool {
	s.setState(StateFetching)
	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()

	var delivered bool
	switch {
	case req.source != "":
		delivered = s.namedCycle(ctx, req.source)
	case req.kind == kickSweep:
		delivered = s.sweepCycle(ctx)
	default:
		delivered = s.singleCycle(ctx)
	}

	s.mu.Lock()
	if delivered {
		s.delivered++
		s.lastSuccess = time.Now()
		s.current = s.opts.BaseInterval
	} else {
		s.current += s.opts.Increment
		if s.current > s.opts.MaxInterval {
			s.current = s.opts.MaxInterval
		}
	}
	next := s.current
	s.mu.Unlock()

	if !delivered {
		log.Printf("[scheduler] empty cycle, next poll in %s", next)
	}
	return delivered
}

// singleCycle draws one source proportional to weight and queries only it.
func (s *Scheduler) singleCycle(ctx context.Context) bool {
	adapter := s.pick()
	if adapter == nil {
		log.Printf("[scheduler] no enabled sources, cycle is a no-op")
		return false
	}
	return s.query(ctx, adapter)
}

// namedCycle runs one specific adapter, bypassing the weighted draw.
func (s *Scheduler) namedCycle(ctx context.Context, name string) bool {
	for _, adapter := range s.adapters {
		if adapter.Name() != name {
			continue
		}
		if !adapter.Enabled() {
			log.Printf("[scheduler] %s is disabled, ignoring fetch request", name)
			return false
		}
		return s.query(ctx, adapter)
	}
	log.Printf("[scheduler] fetch requested for unknown source %q", name)
	return false
}

// sweepCycle shuffles all enabled sources and queries each until one yields.
func (s *Scheduler) sweepCycle(ctx context.Context) bool {
	enabled := s.enabled()
	s.rng.Shuffle(len(enabled), func(i, j int) {
		enabled[i], enabled[j] = enabled[j], enabled[i]
	})
	for _, adapter := range enabled {
		if s.query(ctx, adapter) {
			return true
		}
	}
	return false
}

// query runs one adapter and delivers its candidate if any. Adapter errors
// are logged and count as an empty result; they never stop the scheduler.
func (s *Scheduler) query(ctx context.Context, adapter *source.Adapter) bool {
	candidate, err := adapter.FetchCandidate(ctx)
	if err != nil {
		log.Printf("[scheduler] %s: %v", adapter.Name(), err)
		return false
	}
	if candidate == nil {
		return false
	}

	s.setState(StateDelivering)
	return s.gate.Deliver(adapter.Name(), candidate)
}

// pick implements the cumulative-weight draw. Sources with zero weight are
// never selected.
func (s *Scheduler) pick() *source.Adapter {
	var pool []*source.Adapter
	total := 0.0
	for _, a := range s.enabled() {
		if w := a.Weight(); w > 0 {
			pool = append(pool, a)
			total += w
		}
	}
	if len(pool) == 0 {
		return nil
	}

	r := s.rng.Float64() * total
	for _, a := range pool {
		r -= a.Weight()
		if r <= 0 {
			return a
		}
	}
	return pool[len(pool)-1]
}

func (s *Scheduler) enabled() []*source.Adapter {
	var out []*source.Adapter
	for _, a := range s.adapters {
		if a.Enabled() {
			out = append(out, a)
		}
	}
	return out
}

func (s *Scheduler) startSweeps() {
	if len(s.opts.SweepSchedules) == 0 {
		return
	}
	s.cron = rcron.New()
	for _, expr := range s.opts.SweepSchedules {
		jobID := uuid.NewString()[:8]
		if _, err := s.cron.AddFunc(expr, func() {
			log.Printf("[scheduler] sweep job %s firing", jobID)
			s.TriggerSweep()
		}); err != nil {
			log.Printf("[scheduler] bad sweep schedule %q: %v", expr, err)
			continue
		}
		log.Printf("[scheduler] sweep job %s registered (%s)", jobID, expr)
	}
	s.cron.Start()
}

func (s *Scheduler) stopSweeps() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[scheduler] stop timeout waiting for sweep jobs")
	}
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// CurrentInterval returns the live polling interval.
func (s *Scheduler) CurrentInterval() time.Duration {
	return s.interval()
}

// Snapshot returns the scheduler status.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:           s.state,
		BaseInterval:    s.opts.BaseInterval.String(),
		CurrentInterval: s.current.String(),
		MaxInterval:     s.opts.MaxInterval.String(),
		LastSuccess:     s.lastSuccess,
		Cycles:          s.cycles,
		Delivered:       s.delivered,
	}
}
