package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdonnefort/lisa/pkg/types"
)

func TestTasks_KeepLastName(t *testing.T) {
	tables := map[string]*Table{
		"sched_switch": mustTable(t, "sched_switch", []float64{1, 2, 3},
			types.StringColumn("prev_comm", []string{"app", "kworker/0:1", "app-renamed"}),
			types.IntColumn("prev_pid", []int64{100, 200, 100}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 5})
	require.NoError(t, err)

	name, ok := tr.TaskByPID(100)
	require.True(t, ok)
	assert.Equal(t, "app-renamed", name)

	name, ok = tr.TaskByPID(200)
	require.True(t, ok)
	assert.Equal(t, "kworker/0:1", name)

	_, ok = tr.TaskByPID(300)
	assert.False(t, ok)

	assert.Equal(t, map[int64]string{100: "app-renamed", 200: "kworker/0:1"}, tr.Tasks())
	assert.Equal(t, []int64{100}, tr.PIDsByName("app-renamed"))
	assert.Empty(t, tr.PIDsByName("app"))
}

func TestTasks_LoadAvgFallback(t *testing.T) {
	tables := map[string]*Table{
		"sched_load_avg_task": mustTable(t, "sched_load_avg_task", []float64{1, 2},
			types.StringColumn("comm", []string{"surfaceflinger", "audioserver"}),
			types.IntColumn("pid", []int64{61, 77}),
			types.IntColumn("util_avg", []int64{120, 40}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 5})
	require.NoError(t, err)

	name, ok := tr.TaskByPID(61)
	require.True(t, ok)
	assert.Equal(t, "surfaceflinger", name)
}

func TestTasks_SwitchPreferredOverLoadAvg(t *testing.T) {
	tables := map[string]*Table{
		"sched_switch": mustTable(t, "sched_switch", []float64{1},
			types.StringColumn("prev_comm", []string{"from-switch"}),
			types.IntColumn("prev_pid", []int64{50}),
		),
		"sched_load_avg_task": mustTable(t, "sched_load_avg_task", []float64{1},
			types.StringColumn("comm", []string{"from-load-avg"}),
			types.IntColumn("pid", []int64{50}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 5})
	require.NoError(t, err)

	name, ok := tr.TaskByPID(50)
	require.True(t, ok)
	assert.Equal(t, "from-switch", name)
}

func TestTasks_NoSources(t *testing.T) {
	tables := map[string]*Table{
		"cpu_idle": mustTable(t, "cpu_idle", []float64{1},
			types.IntColumn("cpu_id", []int64{0}),
			types.IntColumn("state", []int64{-1}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 5})
	require.NoError(t, err)

	assert.Empty(t, tr.Tasks())
	_, _, ok := tr.ResolvePID("anything")
	assert.False(t, ok)
}

func TestTasks_ResolvePID(t *testing.T) {
	tables := map[string]*Table{
		"sched_switch": mustTable(t, "sched_switch", []float64{1, 2, 3},
			types.StringColumn("prev_comm", []string{"worker", "worker", "main"}),
			types.IntColumn("prev_pid", []int64{400, 300, 10}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 5})
	require.NoError(t, err)

	pid, all, ok := tr.ResolvePID("main")
	require.True(t, ok)
	assert.Equal(t, int64(10), pid)
	assert.Equal(t, []int64{10}, all)

	// Two PIDs share the name; the lowest wins, both are reported.
	pid, all, ok = tr.ResolvePID("worker")
	require.True(t, ok)
	assert.Equal(t, int64(300), pid)
	assert.Equal(t, []int64{300, 400}, all)

	_, _, ok = tr.ResolvePID("ghost")
	assert.False(t, ok)
}
