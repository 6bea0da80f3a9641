// Package store persists the per-source set of already-delivered item IDs.
package store

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rnovak/newswatch/internal/codec"
)

// SeenStore keeps one set of delivered item IDs per source, loaded fully at
// startup and rewritten in full on every mutation. Read failures yield an
// empty set and write failures are logged; duplicate delivery is a tolerable
// degraded mode, a crash is not.
type SeenStore struct {
	dir string
	now func() time.Time

	sets map[string]map[string]int64 // source -> id -> seen-at epoch seconds
}

func NewSeenStore(dir string) *SeenStore {
	return &SeenStore{
		dir:  dir,
		now:  time.Now,
		sets: make(map[string]map[string]int64),
	}
}

// Init loads a source's persisted set. Missing or unreadable files leave the
// source with an empty set.
func (s *SeenStore) Init(source string) {
	set := make(map[string]int64)
	s.sets[source] = set

	f, err := os.Open(s.path(source))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[seen] load %s: %v (starting empty)", source, err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if codec.IsComment(line) {
			continue
		}
		id, ts, err := codec.DecodeSeen(line)
		if err != nil {
			log.Printf("[seen] skipping bad record in %s: %v", source, err)
			continue
		}
		set[id] = ts
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[seen] read %s: %v (keeping %d records)", source, err, len(set))
	}
}

// HasSeen reports whether the item was already delivered or committed.
func (s *SeenStore) HasSeen(source, id string) bool {
	set, ok := s.sets[source]
	if !ok {
		return false
	}
	_, seen := set[id]
	return seen
}

// MarkSeen records the item with the current timestamp and persists the full
// per-source set. Re-marking refreshes the timestamp.
func (s *SeenStore) MarkSeen(source, id string) {
	set, ok := s.sets[source]
	if !ok {
		set = make(map[string]int64)
		s.sets[source] = set
	}
	set[id] = s.now().Unix()
	if err := s.save(source); err != nil {
		log.Printf("[seen] persist %s: %v (continuing)", source, err)
	}
}

// EvictExpired drops records older than the retention window and persists.
// Eviction deliberately re-opens items to delivery after the window.
func (s *SeenStore) EvictExpired(source string, retention time.Duration) int {
	set, ok := s.sets[source]
	if !ok {
		return 0
	}
	cutoff := s.now().Add(-retention).Unix()
	removed := 0
	for id, ts := range set {
		if ts < cutoff {
			delete(set, id)
			removed++
		}
	}
	if removed > 0 {
		if err := s.save(source); err != nil {
			log.Printf("[seen] persist %s after eviction: %v", source, err)
		}
	}
	return removed
}

// Count returns the number of live records for a source.
func (s *SeenStore) Count(source string) int {
	return len(s.sets[source])
}

func (s *SeenStore) path(source string) string {
	return filepath.Join(s.dir, "seen_"+source+".txt")
}

func (s *SeenStore) save(source string) error {
	set := s.sets[source]

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	// Oldest first keeps diffs readable and matches eviction order.
	sort.Slice(ids, func(i, j int) bool {
		if set[ids[i]] != set[ids[j]] {
			return set[ids[i]] < set[ids[j]]
		}
		return ids[i] < ids[j]
	})

	var sb strings.Builder
	sb.WriteString(codec.Header)
	sb.WriteByte('\n')
	for _, id := range ids {
		sb.WriteString(codec.EncodeSeen(id, set[id]))
		sb.WriteByte('\n')
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	// Atomic replace via temp file; rename is atomic on the filesystems we
	// run on.
	path := s.path(source)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename store file: %w", err)
	}
	return nil
}
