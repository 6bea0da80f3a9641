package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rnovak/newswatch/internal/similarity"
	"github.com/rnovak/newswatch/internal/store"
)

func testAdapter(t *testing.T, spec Spec) *Adapter {
	t.Helper()
	if spec.Name == "" {
		spec.Name = "test"
	}
	spec.Configured = true
	if spec.Retention == 0 {
		spec.Retention = 24 * time.Hour
	}
	if spec.Lookback == 0 {
		spec.Lookback = 24 * time.Hour
	}
	seen := store.NewSeenStore(t.TempDir())
	a := New(spec, true, 1, seen, nil)
	a.Initialize(context.Background())
	return a
}

func staticFetch(candidates ...Candidate) FetchFunc {
	return func(ctx context.Context) ([]Candidate, error) {
		return candidates, nil
	}
}

func freshCandidate(id, title string) Candidate {
	return Candidate{
		ID:          id,
		Title:       title,
		URL:         "https://x/" + id,
		PublishedAt: time.Now().Add(-time.Hour),
	}
}

func TestAcceptThenSeen(t *testing.T) {
	c := freshCandidate("a1", "Storm hits coast")
	a := testAdapter(t, Spec{Fetch: staticFetch(c)})

	got, err := a.FetchCandidate(context.Background())
	if err != nil {
		t.Fatalf("FetchCandidate error: %v", err)
	}
	if got == nil || got.ID != "a1" {
		t.Fatalf("got = %+v, want a1 accepted", got)
	}

	// Identical fetch within the retention window: rejected by the seen set.
	got, err = a.FetchCandidate(context.Background())
	if err != nil {
		t.Fatalf("second FetchCandidate error: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil on re-fetch of a delivered item", got)
	}
}

func TestAtMostOnePerCall(t *testing.T) {
	a := testAdapter(t, Spec{Fetch: staticFetch(
		freshCandidate("a1", "First story"),
		freshCandidate("a2", "Second story"),
	)})

	first, _ := a.FetchCandidate(context.Background())
	if first == nil || first.ID != "a1" {
		t.Fatalf("first = %+v, want a1 (fetch order wins)", first)
	}
	second, _ := a.FetchCandidate(context.Background())
	if second == nil || second.ID != "a2" {
		t.Fatalf("second = %+v, want a2 on the next cycle", second)
	}
}

func TestMissingFieldsSkipped(t *testing.T) {
	noURL := Candidate{ID: "x", Title: "No link", PublishedAt: time.Now()}
	a := testAdapter(t, Spec{Fetch: staticFetch(noURL, freshCandidate("ok", "Proper story"))})

	got, _ := a.FetchCandidate(context.Background())
	if got == nil || got.ID != "ok" {
		t.Errorf("got = %+v, want malformed item silently skipped", got)
	}
}

func TestRecencyFilter(t *testing.T) {
	stale := freshCandidate("old", "Old story")
	stale.PublishedAt = time.Now().Add(-48 * time.Hour)
	future := freshCandidate("tomorrow", "Time travel")
	future.PublishedAt = time.Now().Add(2 * time.Hour)
	a := testAdapter(t, Spec{Fetch: staticFetch(stale, future)})

	got, _ := a.FetchCandidate(context.Background())
	if got != nil {
		t.Errorf("got = %+v, want nil (stale and future-dated rejected)", got)
	}
}

func TestAuthorFilter(t *testing.T) {
	other := freshCandidate("o1", "Post by someone else")
	other.Author = "stranger"
	wanted := freshCandidate("w1", "Post by our poster")
	wanted.Author = "Watcher"
	a := testAdapter(t, Spec{Author: "watcher", Fetch: staticFetch(other, wanted)})

	got, _ := a.FetchCandidate(context.Background())
	if got == nil || got.ID != "w1" {
		t.Errorf("got = %+v, want case-insensitive author match", got)
	}
}

func TestDenylistMarksSeen(t *testing.T) {
	banned := freshCandidate("b1", "Spam post")
	banned.URL = "https://example.com/OnlyFans/profile"
	a := testAdapter(t, Spec{Denylist: []string{"onlyfans"}, Fetch: staticFetch(banned)})

	got, _ := a.FetchCandidate(context.Background())
	if got != nil {
		t.Fatalf("got = %+v, want denylisted candidate withheld", got)
	}
	if !a.seen.HasSeen("test", "b1") {
		t.Error("denylist hit must still be marked seen so the batch is not re-inspected")
	}
}

func TestLanguageFilter(t *testing.T) {
	foreign := freshCandidate("f1", "Der Bundestag stimmte heute erneut über das neue Gesetz ab")
	english := freshCandidate("e1", "The senate votes on the measure for a second time")
	a := testAdapter(t, Spec{Language: true, Fetch: staticFetch(foreign, english)})

	got, _ := a.FetchCandidate(context.Background())
	if got == nil || got.ID != "e1" {
		t.Errorf("got = %+v, want the English candidate", got)
	}
}

func TestQuotaSkipsNetwork(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) ([]Candidate, error) {
		calls++
		return []Candidate{freshCandidate(fmt.Sprintf("c%d", calls), "Story")}, nil
	}
	quota := NewDailyQuota(1)
	a := testAdapter(t, Spec{Fetch: fetch, Quota: quota})

	if got, _ := a.FetchCandidate(context.Background()); got == nil {
		t.Fatal("first fetch should succeed")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	got, err := a.FetchCandidate(context.Background())
	if err != nil {
		t.Fatalf("over-quota fetch error: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil beyond the ceiling", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no network call beyond the ceiling)", calls)
	}
	if rem := quota.Remaining(); rem != 0 {
		t.Errorf("remaining = %d, want 0 (counter unchanged by refused cycle)", rem)
	}
}

func TestQuotaNotCountedOnTransportFailure(t *testing.T) {
	fetch := func(ctx context.Context) ([]Candidate, error) {
		return nil, fmt.Errorf("connection reset")
	}
	quota := NewDailyQuota(5)
	a := testAdapter(t, Spec{Fetch: fetch, Quota: quota})

	if _, err := a.FetchCandidate(context.Background()); err == nil {
		t.Fatal("transport failure should surface")
	}
	if rem := quota.Remaining(); rem != 5 {
		t.Errorf("remaining = %d, want 5 (failed calls do not count)", rem)
	}
}

func TestUnconfiguredForceDisabled(t *testing.T) {
	seen := store.NewSeenStore(t.TempDir())
	a := New(Spec{Name: "k", Configured: false, Fetch: staticFetch()}, true, 1, seen, nil)
	if a.Enabled() {
		t.Error("unconfigured adapter must be force-disabled")
	}
	a.SetEnabled(true)
	if a.Enabled() {
		t.Error("enabling an unconfigured adapter must not stick")
	}
}

func TestWeightClamp(t *testing.T) {
	a := testAdapter(t, Spec{Fetch: staticFetch()})
	a.SetWeight(-3)
	if got := a.Weight(); got != 0 {
		t.Errorf("weight = %v, want clamped to 0", got)
	}
}

// nearDuplicateEmbedder serves fixed two-dimensional vectors.
type nearDuplicateEmbedder struct{}

func (nearDuplicateEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch text {
	case "Fed raises interest rates":
		return []float32{1, 0}, nil
	case "Federal Reserve increases rates":
		return []float32{0.9, 0.436}, nil // cosine ≈ 0.90 against {1,0}
	}
	return []float32{0, 1}, nil
}

func (e nearDuplicateEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func TestNearDuplicateRejected(t *testing.T) {
	dir := t.TempDir()
	seen := store.NewSeenStore(dir)
	index := similarity.NewIndex(dir, nearDuplicateEmbedder{})

	spec := Spec{
		Name:       "market",
		Configured: true,
		Lookback:   24 * time.Hour,
		Retention:  24 * time.Hour,
		Similarity: true,
		SimParams:  similarity.Params{Threshold: 0.85, MaxHistorySize: 500, RetentionHours: 48},
		Fetch: staticFetch(
			freshCandidate("n1", "Fed raises interest rates"),
			freshCandidate("n2", "Federal Reserve increases rates"),
		),
	}
	a := New(spec, true, 1, seen, index)
	a.Initialize(context.Background())

	first, _ := a.FetchCandidate(context.Background())
	if first == nil || first.ID != "n1" {
		t.Fatalf("first = %+v, want n1 accepted", first)
	}

	second, _ := a.FetchCandidate(context.Background())
	if second != nil {
		t.Errorf("second = %+v, want nil (0.90 cosine against 0.85 threshold)", second)
	}
}
