package similarity

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"
)

// fakeEmbedder returns canned vectors per text and can be switched into a
// failing mode.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embedder down")
	}
	vec, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func unit(angleDeg float64) []float32 {
	rad := angleDeg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func newTestIndex(t *testing.T, emb *fakeEmbedder) *Index {
	t.Helper()
	ix := NewIndex(t.TempDir(), emb)
	ix.Configure("market", Params{Threshold: 0.85, MaxHistorySize: 500, RetentionHours: 48})
	return ix
}

func TestNearDuplicateAboveThreshold(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Fed raises interest rates":        unit(0),
		"Federal Reserve increases rates":  unit(25), // cos(25°) ≈ 0.906
		"Volcano erupts in Iceland":        unit(80), // cos(80°) ≈ 0.17
	}}
	ix := newTestIndex(t, emb)

	ix.Record(context.Background(), "market", "Fed raises interest rates")

	res := ix.IsNearDuplicate(context.Background(), "market", "Federal Reserve increases rates")
	if !res.IsDuplicate {
		t.Fatalf("expected duplicate, score = %v", res.Score)
	}
	if res.MatchedText != "Fed raises interest rates" {
		t.Errorf("matchedText = %q, want the stored headline", res.MatchedText)
	}
	if res.Score < 0.85 {
		t.Errorf("score = %v, want >= 0.85", res.Score)
	}

	res = ix.IsNearDuplicate(context.Background(), "market", "Volcano erupts in Iceland")
	if res.IsDuplicate {
		t.Errorf("unrelated headline flagged duplicate at score %v", res.Score)
	}
}

func TestMaxScoreWins(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"far":   unit(30),
		"near":  unit(5),
		"probe": unit(0),
	}}
	ix := newTestIndex(t, emb)
	ix.Configure("market", Params{Threshold: 0.5, MaxHistorySize: 500, RetentionHours: 48})

	ix.Record(context.Background(), "market", "far")
	ix.Record(context.Background(), "market", "near")

	res := ix.IsNearDuplicate(context.Background(), "market", "probe")
	if !res.IsDuplicate {
		t.Fatal("expected duplicate")
	}
	if res.MatchedText != "near" {
		t.Errorf("matchedText = %q, want the maximum-scoring record", res.MatchedText)
	}
}

func TestEmbedFailureFailsOpen(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"stored": unit(0)}}
	ix := newTestIndex(t, emb)
	ix.Record(context.Background(), "market", "stored")

	emb.fail = true
	res := ix.IsNearDuplicate(context.Background(), "market", "stored")
	if res.IsDuplicate {
		t.Error("an embedder outage must never block delivery")
	}
}

func TestPruneBounds(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	ix := newTestIndex(t, emb)
	ix.Configure("market", Params{Threshold: 0.85, MaxHistorySize: 3, RetentionHours: 24})

	base := time.Now()
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("headline %d", i)
		emb.vectors[text] = unit(float64(i))
		ix.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		ix.Record(context.Background(), "market", text)
	}

	if got := ix.Count("market"); got != 3 {
		t.Errorf("count = %d, want 3 (size bound, oldest removed first)", got)
	}

	// Age every record out of the window.
	ix.now = func() time.Time { return base.Add(25 * time.Hour) }
	removed := ix.Prune("market")
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if got := ix.Count("market"); got != 0 {
		t.Errorf("count = %d, want 0 after aging out", got)
	}
}

func TestLoadReembedsSurvivors(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"kept": unit(0),
	}}
	dir := t.TempDir()

	ix := NewIndex(dir, emb)
	ix.Configure("market", Params{Threshold: 0.85, MaxHistorySize: 500, RetentionHours: 48})
	ix.Record(context.Background(), "market", "kept")

	fresh := NewIndex(dir, emb)
	fresh.Configure("market", Params{Threshold: 0.85, MaxHistorySize: 500, RetentionHours: 48})
	fresh.Load(context.Background(), "market")
	if got := fresh.Count("market"); got != 1 {
		t.Fatalf("count after load = %d, want 1", got)
	}

	res := fresh.IsNearDuplicate(context.Background(), "market", "kept")
	if !res.IsDuplicate || res.Score < 0.999 {
		t.Errorf("identical headline after reload: duplicate=%v score=%v", res.IsDuplicate, res.Score)
	}
}

func TestThresholdClamped(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	ix := newTestIndex(t, emb)

	ix.SetThreshold("market", 1.7)
	if got := ix.Threshold("market"); got != 1 {
		t.Errorf("threshold = %v, want clamped to 1", got)
	}
	ix.SetThreshold("market", -0.2)
	if got := ix.Threshold("market"); got != 0 {
		t.Errorf("threshold = %v, want clamped to 0", got)
	}
}
