// Package similarity keeps a bounded, time-windowed per-source history of
// delivered headline embeddings and answers near-duplicate queries against
// it.
package similarity

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rnovak/newswatch/internal/codec"
	"github.com/rnovak/newswatch/internal/embed"
)

// Params are the per-source knobs. Threshold is runtime-adjustable.
type Params struct {
	Threshold      float64
	MaxHistorySize int
	RetentionHours int
}

// Result of a near-duplicate lookup. MatchedText is the stored headline with
// the maximum score when IsDuplicate is true.
type Result struct {
	IsDuplicate bool
	Score       float64
	MatchedText string
}

type record struct {
	text       string
	vector     []float32 // nil when the embedding could not be computed
	recordedAt int64
}

// Index holds the per-source histories. Lookups are a linear scan over the
// bounded window, which stays small (MaxHistorySize, default 500).
type Index struct {
	dir      string
	embedder embed.Embedder
	now      func() time.Time

	params  map[string]Params
	records map[string][]record // kept in recordedAt order, oldest first
}

func NewIndex(dir string, embedder embed.Embedder) *Index {
	return &Index{
		dir:      dir,
		embedder: embedder,
		now:      time.Now,
		params:   make(map[string]Params),
		records:  make(map[string][]record),
	}
}

// Configure sets a source's parameters. The threshold is clamped to [0, 1].
func (ix *Index) Configure(source string, p Params) {
	p.Threshold = clamp01(p.Threshold)
	if p.MaxHistorySize <= 0 {
		p.MaxHistorySize = 500
	}
	if p.RetentionHours <= 0 {
		p.RetentionHours = 48
	}
	ix.params[source] = p
	if _, ok := ix.records[source]; !ok {
		ix.records[source] = nil
	}
}

// SetThreshold adjusts one source's duplicate threshold at runtime.
func (ix *Index) SetThreshold(source string, threshold float64) {
	p, ok := ix.params[source]
	if !ok {
		return
	}
	p.Threshold = clamp01(threshold)
	ix.params[source] = p
}

// Threshold returns the current threshold for a source.
func (ix *Index) Threshold(source string) float64 {
	return ix.params[source].Threshold
}

// Load reads a source's persisted headlines, drops entries already outside
// the retention window, and re-embeds the survivors in one batch. An
// embedder outage leaves the texts loaded without vectors; they are skipped
// during comparison until replaced.
func (ix *Index) Load(ctx context.Context, source string) {
	p := ix.params[source]
	cutoff := ix.now().Add(-time.Duration(p.RetentionHours) * time.Hour).Unix()

	f, err := os.Open(ix.path(source))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[similarity] load %s: %v (starting empty)", source, err)
		}
		return
	}
	defer f.Close()

	var loaded []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if codec.IsComment(line) {
			continue
		}
		text, ts, err := codec.DecodeHeadline(line)
		if err != nil {
			log.Printf("[similarity] skipping bad record in %s: %v", source, err)
			continue
		}
		if ts < cutoff {
			continue
		}
		loaded = append(loaded, record{text: text, recordedAt: ts})
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[similarity] read %s: %v (keeping %d records)", source, err, len(loaded))
	}
	if len(loaded) == 0 {
		return
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].recordedAt < loaded[j].recordedAt })

	texts := make([]string, len(loaded))
	for i, r := range loaded {
		texts[i] = r.text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Printf("[similarity] re-embed %s history: %v (records kept without vectors)", source, err)
	} else {
		for i := range loaded {
			loaded[i].vector = vectors[i]
		}
	}

	ix.records[source] = loaded
	ix.enforceBounds(source)
}

// IsNearDuplicate scores the candidate against every stored headline for the
// source and reports a duplicate iff the maximum score reaches the
// threshold. An embedding failure reports "not duplicate" so a provider
// outage never blocks delivery.
func (ix *Index) IsNearDuplicate(ctx context.Context, source, candidateText string) Result {
	recs := ix.records[source]
	if len(recs) == 0 {
		return Result{}
	}

	candidate, err := ix.embedder.Embed(ctx, candidateText)
	if err != nil || candidate == nil {
		log.Printf("[similarity] embed candidate for %s failed: %v (failing open)", source, err)
		return Result{}
	}

	best := Result{Score: -1}
	for _, r := range recs {
		if r.vector == nil {
			continue
		}
		score, err := CosineSimilarity(candidate, r.vector)
		if err != nil {
			continue
		}
		if score > best.Score {
			best.Score = score
			best.MatchedText = r.text
		}
	}
	if best.Score < 0 {
		return Result{}
	}

	best.IsDuplicate = best.Score >= ix.params[source].Threshold
	if !best.IsDuplicate {
		best.MatchedText = ""
	}
	return best
}

// Record embeds and stores an accepted headline, then persists the source's
// history. An embedding failure still stores and persists the text; the
// vector is recovered on the next process start.
func (ix *Index) Record(ctx context.Context, source, text string) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[similarity] embed record for %s failed: %v (stored without vector)", source, err)
		vec = nil
	}
	ix.records[source] = append(ix.records[source], record{
		text:       text,
		vector:     vec,
		recordedAt: ix.now().Unix(),
	})
	ix.enforceBounds(source)
	if err := ix.save(source); err != nil {
		log.Printf("[similarity] persist %s: %v (continuing)", source, err)
	}
}

// Prune applies both retention policies and persists when anything changed:
// no record older than the window survives, and the count never exceeds the
// configured bound afterwards.
func (ix *Index) Prune(source string) int {
	before := len(ix.records[source])
	ix.enforceBounds(source)
	removed := before - len(ix.records[source])
	if removed > 0 {
		if err := ix.save(source); err != nil {
			log.Printf("[similarity] persist %s after prune: %v", source, err)
		}
	}
	return removed
}

// Count returns the number of stored records for a source.
func (ix *Index) Count(source string) int {
	return len(ix.records[source])
}

func (ix *Index) enforceBounds(source string) {
	p := ix.params[source]
	recs := ix.records[source]
	cutoff := ix.now().Add(-time.Duration(p.RetentionHours) * time.Hour).Unix()

	kept := recs[:0]
	for _, r := range recs {
		if r.recordedAt >= cutoff {
			kept = append(kept, r)
		}
	}
	// Oldest-first removal down to the size bound.
	if p.MaxHistorySize > 0 && len(kept) > p.MaxHistorySize {
		kept = kept[len(kept)-p.MaxHistorySize:]
	}
	ix.records[source] = kept
}

func (ix *Index) path(source string) string {
	return filepath.Join(ix.dir, "headlines_"+source+".txt")
}

func (ix *Index) save(source string) error {
	var sb strings.Builder
	sb.WriteString(codec.Header)
	sb.WriteByte('\n')
	for _, r := range ix.records[source] {
		sb.WriteString(codec.EncodeHeadline(r.text, r.recordedAt))
		sb.WriteByte('\n')
	}

	if err := os.MkdirAll(ix.dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	path := ix.path(source)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
