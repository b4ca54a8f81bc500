package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdonnefort/lisa/pkg/types"
)

func loadTrace(t *testing.T, tables map[string]*Table, opts ...Option) *Trace {
	t.Helper()
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10}, opts...)
	require.NoError(t, err)
	return tr
}

func TestSanitize_LoadAvgCPURenames(t *testing.T) {
	tables := map[string]*Table{
		"sched_load_avg_cpu": mustTable(t, "sched_load_avg_cpu", []float64{1},
			types.IntColumn("cpu", []int64{0}),
			types.IntColumn("utilization", []int64{400}),
			types.IntColumn("load", []int64{500}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_load_avg_cpu")
	require.NoError(t, err)
	assert.False(t, tb.HasColumn("utilization"))
	assert.False(t, tb.HasColumn("load"))
	util, ok := tb.Column("util_avg")
	require.True(t, ok)
	assert.Equal(t, []int64{400}, util.Ints())
	assert.True(t, tb.HasColumn("load_avg"))
}

func TestSanitize_LoadAvgCPUModernNamesUntouched(t *testing.T) {
	tables := map[string]*Table{
		"sched_load_avg_cpu": mustTable(t, "sched_load_avg_cpu", []float64{1},
			types.IntColumn("cpu", []int64{0}),
			types.IntColumn("util_avg", []int64{400}),
			types.IntColumn("load_avg", []int64{500}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_load_avg_cpu")
	require.NoError(t, err)
	assert.True(t, tb.HasColumn("util_avg"))
	assert.True(t, tb.HasColumn("load_avg"))
}

func TestSanitize_LoadAvgTaskRenames(t *testing.T) {
	tables := map[string]*Table{
		"sched_load_avg_task": mustTable(t, "sched_load_avg_task", []float64{1},
			types.StringColumn("comm", []string{"task_a"}),
			types.IntColumn("pid", []int64{42}),
			types.IntColumn("utilization", []int64{100}),
			types.IntColumn("load", []int64{200}),
			types.IntColumn("avg_period", []int64{300}),
			types.IntColumn("runnable_avg_sum", []int64{400}),
			types.IntColumn("running_avg_sum", []int64{500}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_load_avg_task")
	require.NoError(t, err)
	for _, want := range []string{"util_avg", "load_avg", "period_contrib", "load_sum", "util_sum"} {
		assert.True(t, tb.HasColumn(want), "missing %s", want)
	}
	for _, gone := range []string{"utilization", "load", "avg_period", "runnable_avg_sum", "running_avg_sum"} {
		assert.False(t, tb.HasColumn(gone), "stale %s", gone)
	}
}

func TestSanitize_CPUCapacity(t *testing.T) {
	tables := map[string]*Table{
		"cpu_capacity": mustTable(t, "cpu_capacity", []float64{1, 2},
			types.IntColumn("cpu", []int64{0, 3}),
			types.IntColumn("capacity", []int64{300, 900}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	tb, err := tr.Get("cpu_capacity")
	require.NoError(t, err)
	maxCap, ok := tb.Column("max_capacity")
	require.True(t, ok)
	assert.Equal(t, []float64{447, 1024}, maxCap.Floats())
	tipCap, ok := tb.Column("tip_capacity")
	require.True(t, ok)
	assert.InDelta(t, 0.8*447, tipCap.Floats()[0], 1e-9)
	assert.InDelta(t, 0.8*1024, tipCap.Floats()[1], 1e-9)
}

func TestSanitize_CPUCapacityNeedsEnergyModel(t *testing.T) {
	tables := map[string]*Table{
		"cpu_capacity": mustTable(t, "cpu_capacity", []float64{1},
			types.IntColumn("cpu", []int64{0}),
			types.IntColumn("capacity", []int64{300}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("cpu_capacity")
	require.NoError(t, err)
	assert.False(t, tb.HasColumn("max_capacity"))
	assert.False(t, tb.HasColumn("tip_capacity"))
}

func TestSanitize_BoostCPU(t *testing.T) {
	tables := map[string]*Table{
		"sched_boost_cpu": mustTable(t, "sched_boost_cpu", []float64{1, 2},
			types.IntColumn("cpu", []int64{0, 1}),
			types.IntColumn("usage", []int64{100, 200}),
			types.IntColumn("margin", []int64{24, 56}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_boost_cpu")
	require.NoError(t, err)
	assert.False(t, tb.HasColumn("usage"))
	boosted, ok := tb.Column("boosted_util")
	require.True(t, ok)
	assert.Equal(t, types.KindInt, boosted.Kind())
	assert.Equal(t, []int64{124, 256}, boosted.Ints())
}

func TestSanitize_BoostTaskMixedKinds(t *testing.T) {
	tables := map[string]*Table{
		"sched_boost_task": mustTable(t, "sched_boost_task", []float64{1},
			types.StringColumn("comm", []string{"task_a"}),
			types.IntColumn("utilization", []int64{100}),
			types.FloatColumn("margin", []float64{10.5}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_boost_task")
	require.NoError(t, err)
	assert.True(t, tb.HasColumn("util"))
	boosted, ok := tb.Column("boosted_util")
	require.True(t, ok)
	assert.Equal(t, types.KindFloat, boosted.Kind())
	assert.Equal(t, []float64{110.5}, boosted.Floats())
}

func TestSanitize_EnergyDiff(t *testing.T) {
	tables := map[string]*Table{
		"sched_energy_diff": mustTable(t, "sched_energy_diff", []float64{1, 2},
			types.StringColumn("comm", []string{"task_a", "task_b"}),
			types.IntColumn("nrg_d", []int64{411, -411}),
			types.IntColumn("utl_d", []int64{100, 500}),
			types.IntColumn("payoff", []int64{3000000000, -1000000000}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	tb, err := tr.Get("sched_energy_diff")
	require.NoError(t, err)
	for _, want := range []string{"nrg_diff", "usage_delta", "nrg_payoff"} {
		assert.True(t, tb.HasColumn(want), "missing %s", want)
	}

	// power_max for the test platform is 2*138 + 2*616 + 56 + 80 = 1644,
	// so 411 maps to exactly 256 once scaled by 1024.
	pct, ok := tb.Column("nrg_diff_pct")
	require.True(t, ok)
	assert.Equal(t, []float64{256, -256}, pct.Floats())

	groups, ok := tb.Column("usage_delta_group")
	require.True(t, ok)
	assert.Equal(t, []string{"< 150", "< 600"}, groups.Strings())

	payoff, ok := tb.Column("nrg_payoff_group")
	require.True(t, ok)
	assert.Equal(t, []string{"Optimal Accept", "SchedTune Reject"}, payoff.Strings())
}

func TestSanitize_EnergyDiffNeedsEnergyModel(t *testing.T) {
	tables := map[string]*Table{
		"sched_energy_diff": mustTable(t, "sched_energy_diff", []float64{1},
			types.IntColumn("nrg_d", []int64{411}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_energy_diff")
	require.NoError(t, err)
	assert.True(t, tb.HasColumn("nrg_d"))
	assert.False(t, tb.HasColumn("nrg_diff"))
	assert.False(t, tb.HasColumn("nrg_diff_pct"))
}

func TestSanitize_Overutilized(t *testing.T) {
	tables := map[string]*Table{
		"sched_overutilized": mustTable(t, "sched_overutilized", []float64{0, 2, 5, 9},
			types.IntColumn("overutilized", []int64{0, 1, 0, 1}),
		),
	}
	tr := loadTrace(t, tables)

	tb, err := tr.Get("sched_overutilized")
	require.NoError(t, err)
	lens, ok := tb.Column("len")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 3, 4, 1}, lens.Floats())

	assert.Equal(t, 4.0, tr.OverutilizedTime())
	assert.Equal(t, 40.0, tr.OverutilizedPct())
}

func TestSanitize_ThermalCPUMask(t *testing.T) {
	for _, event := range []string{"thermal_power_cpu_get_power", "thermal_power_cpu_limit"} {
		tables := map[string]*Table{
			event: mustTable(t, event, []float64{1, 2},
				types.StringColumn("cpus", []string{"00000000,0000000f", "00000003"}),
				types.IntColumn("freq", []int64{1000, 2000}),
			),
		}
		tr := loadTrace(t, tables)

		tb, err := tr.Get(event)
		require.NoError(t, err)
		cpus, ok := tb.Column("cpus")
		require.True(t, ok)
		assert.Equal(t, types.KindInt, cpus.Kind())
		assert.Equal(t, []int64{15, 3}, cpus.Ints())
	}
}

func TestSanitize_ThermalCPUMaskBadDigits(t *testing.T) {
	tables := map[string]*Table{
		"thermal_power_cpu_limit": mustTable(t, "thermal_power_cpu_limit", []float64{1},
			types.StringColumn("cpus", []string{"not-hex"}),
		),
	}
	_, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thermal_power_cpu_limit")
}

// Applying the sanitizers to an already sanitized trace must change
// nothing: every rename is gated on the old name and every derived column
// on its own absence.
func TestSanitize_Converges(t *testing.T) {
	devlib := mustTable(t, "cpu_frequency_devlib", []float64{1, 1, 1, 1, 9, 9, 9, 9},
		types.IntColumn("cpu_id", []int64{0, 1, 2, 3, 0, 1, 2, 3}),
		types.IntColumn("state", []int64{800, 800, 1400, 1400, 850, 850, 1450, 1450}),
	)
	tables := map[string]*Table{
		"sched_load_avg_cpu": mustTable(t, "sched_load_avg_cpu", []float64{1},
			types.IntColumn("cpu", []int64{0}),
			types.IntColumn("utilization", []int64{400}),
			types.IntColumn("load", []int64{500}),
		),
		"sched_boost_cpu": mustTable(t, "sched_boost_cpu", []float64{1},
			types.IntColumn("cpu", []int64{0}),
			types.IntColumn("usage", []int64{100}),
			types.IntColumn("margin", []int64{24}),
		),
		"sched_energy_diff": mustTable(t, "sched_energy_diff", []float64{1},
			types.IntColumn("nrg_d", []int64{411}),
			types.IntColumn("utl_d", []int64{100}),
			types.IntColumn("payoff", []int64{0}),
		),
		"sched_overutilized": mustTable(t, "sched_overutilized", []float64{0, 2},
			types.IntColumn("overutilized", []int64{1, 0}),
		),
		"cpu_capacity": mustTable(t, "cpu_capacity", []float64{1},
			types.IntColumn("cpu", []int64{0}),
			types.IntColumn("capacity", []int64{300}),
		),
		"cpu_frequency": mustTable(t, "cpu_frequency", []float64{5, 5, 6, 6},
			types.IntColumn("cpu", []int64{0, 1, 2, 3}),
			types.IntColumn("frequency", []int64{1000, 1000, 1500, 1500}),
		),
		"cpu_frequency_devlib": devlib,
		"thermal_power_cpu_get_power": mustTable(t, "thermal_power_cpu_get_power", []float64{1},
			types.StringColumn("cpus", []string{"0000000f"}),
		),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	before := map[string]*Table{}
	for _, name := range tr.Available() {
		tb, ok := tr.store.raw(name)
		require.True(t, ok)
		before[name] = tb.Clone()
	}
	overTime, overPct := tr.OverutilizedTime(), tr.OverutilizedPct()

	require.NoError(t, tr.sanitize())

	for name, want := range before {
		got, ok := tr.store.raw(name)
		require.True(t, ok)
		requireTablesEqual(t, want, got)
	}
	assert.Equal(t, overTime, tr.OverutilizedTime())
	assert.Equal(t, overPct, tr.OverutilizedPct())
	assert.True(t, tr.FreqCoherent())
}
