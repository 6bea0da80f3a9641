package source

import (
	"sync"
	"time"
)

// DailyQuota enforces a hard per-calendar-day request ceiling. "Is it still
// today" is recomputed on every check against the local date, never cached.
type DailyQuota struct {
	mu    sync.Mutex
	limit int
	count int
	date  string
	now   func() time.Time
}

func NewDailyQuota(limit int) *DailyQuota {
	return &DailyQuota{limit: limit, now: time.Now}
}

func (q *DailyQuota) today() string {
	return q.now().Format("2006-01-02")
}

// Allow reports whether another request may go out today. It does not count
// the request; Increment is called only after a completed network call.
func (q *DailyQuota) Allow() bool {
	if q == nil || q.limit <= 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rolloverLocked()
	return q.count < q.limit
}

// Increment counts one completed request against today.
func (q *DailyQuota) Increment() {
	if q == nil || q.limit <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rolloverLocked()
	q.count++
}

// Remaining returns the requests left today, or -1 when unlimited.
func (q *DailyQuota) Remaining() int {
	if q == nil || q.limit <= 0 {
		return -1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rolloverLocked()
	if rem := q.limit - q.count; rem > 0 {
		return rem
	}
	return 0
}

func (q *DailyQuota) rolloverLocked() {
	if today := q.today(); today != q.date {
		q.date = today
		q.count = 0
	}
}
