package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadStats_RecordsAndRanks(t *testing.T) {
	stats := NewLoadStats(time.Hour)

	stats.RecordAccess("sched_switch", "load", 1000)
	stats.RecordAccess("sched_switch", "squash", 40)
	stats.RecordAccess("cpu_idle", "active", 200)

	top := stats.TopEvents(10)
	assert.Len(t, top, 2)

	assert.Equal(t, "sched_switch", top[0].Event)
	assert.Equal(t, int64(2), top[0].Hits)
	assert.Equal(t, int64(1040), top[0].Rows)
	assert.Equal(t, map[string]int{"load": 1, "squash": 1}, top[0].Sources)

	assert.Equal(t, "cpu_idle", top[1].Event)
	assert.Equal(t, int64(1), top[1].Hits)
}

func TestLoadStats_TopNTruncates(t *testing.T) {
	stats := NewLoadStats(time.Hour)

	stats.RecordAccess("a", "load", 1)
	stats.RecordAccess("b", "load", 1)
	stats.RecordAccess("b", "load", 1)
	stats.RecordAccess("c", "load", 1)

	top := stats.TopEvents(1)
	assert.Len(t, top, 1)
	assert.Equal(t, "b", top[0].Event)

	assert.Empty(t, stats.TopEvents(0))
}

func TestLoadStats_TiesBreakByName(t *testing.T) {
	stats := NewLoadStats(time.Hour)

	stats.RecordAccess("cpu_idle", "load", 1)
	stats.RecordAccess("cpu_frequency", "load", 1)

	top := stats.TopEvents(2)
	assert.Equal(t, "cpu_frequency", top[0].Event)
	assert.Equal(t, "cpu_idle", top[1].Event)
}

func TestLoadStats_ResultIsACopy(t *testing.T) {
	stats := NewLoadStats(time.Hour)
	stats.RecordAccess("sched_switch", "load", 10)

	top := stats.TopEvents(1)
	top[0].Sources["load"] = 99
	top[0].Hits = 99

	again := stats.TopEvents(1)
	assert.Equal(t, int64(1), again[0].Hits)
	assert.Equal(t, 1, again[0].Sources["load"])
}

func TestLoadStats_PruneDropsIdleEvents(t *testing.T) {
	stats := NewLoadStats(time.Nanosecond)

	stats.RecordAccess("sched_switch", "load", 1)
	time.Sleep(time.Millisecond)
	stats.Prune()

	assert.Empty(t, stats.TopEvents(10))
}

func TestLoadStats_ConcurrentAccess(t *testing.T) {
	stats := NewLoadStats(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.RecordAccess("sched_switch", "load", 1)
				stats.TopEvents(1)
			}
		}()
	}
	wg.Wait()

	top := stats.TopEvents(1)
	assert.Equal(t, int64(800), top[0].Hits)
}
