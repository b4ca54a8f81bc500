// Package observability tracks which trace events get used, for
// performance monitoring and load tuning.
package observability

import (
	"sort"
	"sync"
	"time"
)

// LoadStats tracks per-event access frequency across trace loads and
// query surfaces. Operators use it to see which events earn their
// loading cost.
type LoadStats struct {
	mu        sync.RWMutex
	eventFreq map[string]*EventStats
	window    time.Duration
}

// EventStats holds usage statistics for one event.
type EventStats struct {
	Event    string
	Hits     int64
	Rows     int64
	LastSeen time.Time
	Sources  map[string]int // access source → count (e.g. "events" → 5, "squash" → 2)
}

// NewLoadStats creates a usage tracker. window is the retention for
// pruning idle events (e.g. an hour).
func NewLoadStats(window time.Duration) *LoadStats {
	return &LoadStats{
		eventFreq: make(map[string]*EventStats),
		window:    window,
	}
}

// RecordAccess records one access to an event. source names the
// surface that touched it ("events", "squash", "active", "tasks");
// rows is how many records were served. O(1) and thread-safe.
func (l *LoadStats) RecordAccess(event, source string, rows int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats, exists := l.eventFreq[event]
	if !exists {
		stats = &EventStats{
			Event:   event,
			Sources: make(map[string]int),
		}
		l.eventFreq[event] = stats
	}

	stats.Hits++
	stats.Rows += int64(rows)
	stats.LastSeen = time.Now()
	stats.Sources[source]++
}

// TopEvents returns the n most accessed events, most frequent first.
// The result is a deep copy.
func (l *LoadStats) TopEvents(n int) []EventStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.eventFreq) == 0 {
		return []EventStats{}
	}

	stats := make([]EventStats, 0, len(l.eventFreq))
	for _, s := range l.eventFreq {
		cp := EventStats{
			Event:    s.Event,
			Hits:     s.Hits,
			Rows:     s.Rows,
			LastSeen: s.LastSeen,
			Sources:  make(map[string]int, len(s.Sources)),
		}
		for src, count := range s.Sources {
			cp.Sources[src] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Hits != stats[j].Hits {
			return stats[i].Hits > stats[j].Hits
		}
		return stats[i].Event < stats[j].Event
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes events not accessed within the retention window.
// Call it periodically.
func (l *LoadStats) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-l.window)
	for event, stats := range l.eventFreq {
		if stats.LastSeen.Before(threshold) {
			delete(l.eventFreq, event)
		}
	}
}
