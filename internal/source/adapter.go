package source

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/rnovak/newswatch/internal/similarity"
	"github.com/rnovak/newswatch/internal/store"
)

// FetchFunc pulls one batch of raw candidates from a feed, newest first as
// the feed orders them. Implementations carry their own HTTP shape; only the
// filtering below is common.
type FetchFunc func(ctx context.Context) ([]Candidate, error)

// Spec parameterizes one Adapter. Source-specific behavior lives here
// instead of in subtypes.
type Spec struct {
	Name       string
	Fetch      FetchFunc
	Configured bool // false when required credentials are absent

	Lookback  time.Duration // freshness window at selection time
	Retention time.Duration // seen-record eviction window
	Timeout   time.Duration // per-fetch network budget

	Author     string   // restrict to this author; "" or "any" accepts all
	Denylist   []string // banned URL substrings, matched case-insensitively
	Language   bool     // apply the English heuristic
	Similarity bool     // near-duplicate checking against the index
	SimParams  similarity.Params

	Quota *DailyQuota // nil means unlimited
}

// State is a snapshot of one adapter's runtime condition, served by the
// control surface.
type State struct {
	Name           string  `json:"name"`
	Enabled        bool    `json:"enabled"`
	Configured     bool    `json:"configured"`
	Weight         float64 `json:"weight"`
	SeenCount      int     `json:"seenCount"`
	QuotaRemaining int     `json:"quotaRemaining"` // -1 when unlimited
	LastError      string  `json:"lastError,omitempty"`
	LastFetch      string  `json:"lastFetch,omitempty"`

	SimilarityThreshold float64 `json:"similarityThreshold,omitempty"` // 0 when similarity is off
}

// Adapter runs the seven-stage filter pipeline for one source. At most one
// candidate is accepted per FetchCandidate call.
type Adapter struct {
	spec  Spec
	seen  *store.SeenStore
	index *similarity.Index

	mu        sync.Mutex
	enabled   bool
	weight    float64
	lastErr   string
	lastFetch time.Time
}

// New builds an adapter. An unconfigured source is force-disabled regardless
// of the enabled flag.
func New(spec Spec, enabled bool, weight float64, seen *store.SeenStore, index *similarity.Index) *Adapter {
	if !spec.Configured {
		enabled = false
	}
	if spec.Author == "any" {
		spec.Author = ""
	}
	return &Adapter{
		spec:    spec,
		seen:    seen,
		index:   index,
		enabled: enabled,
		weight:  weight,
	}
}

// Initialize loads persisted state for the source and evicts expired seen
// records.
func (a *Adapter) Initialize(ctx context.Context) {
	a.seen.Init(a.spec.Name)
	if removed := a.seen.EvictExpired(a.spec.Name, a.spec.Retention); removed > 0 {
		log.Printf("[source:%s] evicted %d expired seen records", a.spec.Name, removed)
	}
	if a.spec.Similarity && a.index != nil {
		a.index.Configure(a.spec.Name, a.spec.SimParams)
		a.index.Load(ctx, a.spec.Name)
	}
}

func (a *Adapter) Name() string { return a.spec.Name }

// IsConfigured reports whether the source has its required credentials.
func (a *Adapter) IsConfigured() bool { return a.spec.Configured }

func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled flips the source at runtime. Unconfigured sources stay off.
func (a *Adapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled && a.spec.Configured
}

func (a *Adapter) Weight() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.weight
}

// SetWeight adjusts the selection weight; negative values clamp to zero.
func (a *Adapter) SetWeight(w float64) {
	if w < 0 {
		w = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weight = w
}

// SetSimilarityThreshold forwards a runtime threshold change to the index.
func (a *Adapter) SetSimilarityThreshold(threshold float64) {
	if a.spec.Similarity && a.index != nil {
		a.index.SetThreshold(a.spec.Name, threshold)
	}
}

// Snapshot returns the adapter's current state.
func (a *Adapter) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := State{
		Name:           a.spec.Name,
		Enabled:        a.enabled,
		Configured:     a.spec.Configured,
		Weight:         a.weight,
		SeenCount:      a.seen.Count(a.spec.Name),
		QuotaRemaining: a.spec.Quota.Remaining(),
		LastError:      a.lastErr,
	}
	if !a.lastFetch.IsZero() {
		st.LastFetch = a.lastFetch.Format(time.RFC3339)
	}
	if a.spec.Similarity && a.index != nil {
		st.SimilarityThreshold = a.index.Threshold(a.spec.Name)
	}
	return st
}

// FetchCandidate pulls one batch and returns the first candidate that
// survives the filter pipeline, or nil when the cycle is empty. The accepted
// candidate is committed (seen + similarity) before it is returned.
func (a *Adapter) FetchCandidate(ctx context.Context) (*Candidate, error) {
	if !a.spec.Quota.Allow() {
		log.Printf("[source:%s] daily quota exhausted, skipping cycle", a.spec.Name)
		return nil, nil
	}

	fetchCtx := ctx
	if a.spec.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.spec.Timeout)
		defer cancel()
	}

	candidates, err := a.spec.Fetch(fetchCtx)
	a.mu.Lock()
	a.lastFetch = time.Now()
	if err != nil {
		a.lastErr = err.Error()
	} else {
		a.lastErr = ""
	}
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// Only transport-level success counts against the quota.
	a.spec.Quota.Increment()

	for i := range candidates {
		c := &candidates[i]
		if verdict := a.inspect(ctx, c); !verdict.OK {
			if verdict.Reason != ReasonMissingFields && verdict.Reason != ReasonSeen {
				log.Printf("[source:%s] skip %q: %s", a.spec.Name, firstNonEmpty(c.Title, c.ID), verdict.Reason)
			}
			continue
		}

		a.seen.MarkSeen(a.spec.Name, c.ID)
		if a.spec.Similarity && a.index != nil {
			a.index.Record(ctx, a.spec.Name, c.Title)
		}
		return c, nil
	}
	return nil, nil
}

// inspect runs the filter stages in their fixed order, short-circuiting on
// the first failure.
func (a *Adapter) inspect(ctx context.Context, c *Candidate) Verdict {
	for _, stage := range []func(context.Context, *Candidate) Verdict{
		a.checkRequiredFields,
		a.checkRecency,
		a.checkAuthor,
		a.checkDenylist,
		a.checkSeen,
		a.checkLanguage,
		a.checkNearDuplicate,
	} {
		if verdict := stage(ctx, c); !verdict.OK {
			return verdict
		}
	}
	return accept()
}

func (a *Adapter) checkRequiredFields(_ context.Context, c *Candidate) Verdict {
	if c.ID == "" || c.Title == "" || c.URL == "" {
		return skip(ReasonMissingFields)
	}
	return accept()
}

func (a *Adapter) checkRecency(_ context.Context, c *Candidate) Verdict {
	now := time.Now()
	if c.PublishedAt.After(now) {
		return skip(ReasonFuture)
	}
	if a.spec.Lookback > 0 && c.PublishedAt.Before(now.Add(-a.spec.Lookback)) {
		return skip(ReasonStale)
	}
	return accept()
}

func (a *Adapter) checkAuthor(_ context.Context, c *Candidate) Verdict {
	if a.spec.Author != "" && !strings.EqualFold(c.Author, a.spec.Author) {
		return skip(ReasonAuthor)
	}
	return accept()
}

// checkDenylist marks a hit as seen so the same item is not re-inspected on
// the next fetch of the same batch, but never returns it.
func (a *Adapter) checkDenylist(_ context.Context, c *Candidate) Verdict {
	lower := strings.ToLower(c.URL)
	for _, banned := range a.spec.Denylist {
		if banned != "" && strings.Contains(lower, strings.ToLower(banned)) {
			a.seen.MarkSeen(a.spec.Name, c.ID)
			return skip(ReasonDenylist)
		}
	}
	return accept()
}

func (a *Adapter) checkSeen(_ context.Context, c *Candidate) Verdict {
	if a.seen.HasSeen(a.spec.Name, c.ID) {
		return skip(ReasonSeen)
	}
	return accept()
}

func (a *Adapter) checkLanguage(_ context.Context, c *Candidate) Verdict {
	if !a.spec.Language {
		return accept()
	}
	combined := strings.TrimSpace(c.Title + " " + c.Description)
	if !looksEnglish(c.Language, combined) {
		return skip(ReasonLanguage)
	}
	return accept()
}

func (a *Adapter) checkNearDuplicate(ctx context.Context, c *Candidate) Verdict {
	if !a.spec.Similarity || a.index == nil {
		return accept()
	}
	if res := a.index.IsNearDuplicate(ctx, a.spec.Name, c.Title); res.IsDuplicate {
		log.Printf("[source:%s] %q scored %.3f against %q", a.spec.Name, c.Title, res.Score, res.MatchedText)
		return skip(ReasonDuplicate)
	}
	return accept()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
