package colgraph

import (
	"sync"
	"time"
)

// SlowQueryEntry records one statement that exceeded SlowQueryThreshold.
type SlowQueryEntry struct {
	Statement  string        `json:"statement"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Rows       int           `json:"rows"`
	Timestamp  time.Time     `json:"timestamp"`
}

// slowQueryLog is a bounded ring buffer of recent slow statements.
type slowQueryLog struct {
	mu      sync.Mutex
	entries []SlowQueryEntry
	pos     int
	cap     int
}

func newSlowQueryLog(capacity int) *slowQueryLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &slowQueryLog{
		entries: make([]SlowQueryEntry, 0, capacity),
		cap:     capacity,
	}
}

func (l *slowQueryLog) add(e SlowQueryEntry) {
	l.mu.Lock()
	if len(l.entries) < l.cap {
		l.entries = append(l.entries, e)
	} else {
		l.entries[l.pos] = e
	}
	l.pos = (l.pos + 1) % l.cap
	l.mu.Unlock()
}

// recent returns up to n entries, newest first.
func (l *slowQueryLog) recent(n int) []SlowQueryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := len(l.entries)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]SlowQueryEntry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.pos-1-i+size)%size]
	}
	return out
}

// observeStatement records the duration of a finished statement and logs
// it when it crossed the slow threshold.
func (db *DB) observeStatement(text string, d time.Duration, rows int) {
	db.metrics.recordQueryDuration(d)

	threshold := db.opts.SlowQueryThreshold
	if threshold <= 0 || d < threshold {
		return
	}
	db.metrics.SlowQueries.Add(1)
	db.slowLog.add(SlowQueryEntry{
		Statement:  truncateQuery(text, 500),
		Duration:   d,
		DurationMs: float64(d.Microseconds()) / 1000.0,
		Rows:       rows,
		Timestamp:  time.Now(),
	})
	db.log.Warn("slow query detected",
		"query", truncateQuery(text, 200),
		"duration", d.String(),
		"rows", rows,
		"threshold", threshold.String(),
	)
}

// SlowQueries returns the most recent slow statements (up to n), newest first.
func (db *DB) SlowQueries(n int) []SlowQueryEntry {
	return db.slowLog.recent(n)
}

func truncateQuery(q string, maxLen int) string {
	if len(q) <= maxLen {
		return q
	}
	return q[:maxLen] + "..."
}
