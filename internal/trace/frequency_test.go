package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdonnefort/lisa/pkg/types"
)

// fourCPUDevlib is one synthetic sample per CPU before the capture and one
// after it, on the bigLittlePlatform domain layout.
func fourCPUDevlib(t *testing.T) *Table {
	return mustTable(t, "cpu_frequency_devlib", []float64{1, 1, 1, 1, 9, 9, 9, 9},
		types.IntColumn("cpu_id", []int64{0, 1, 2, 3, 0, 1, 2, 3}),
		types.IntColumn("state", []int64{800, 800, 1400, 1400, 850, 850, 1450, 1450}),
	)
}

func TestFrequency_MergesNonOverlappingSamples(t *testing.T) {
	tables := map[string]*Table{
		"cpu_frequency": mustTable(t, "cpu_frequency", []float64{5, 5, 6, 6},
			types.IntColumn("cpu", []int64{0, 1, 2, 3}),
			types.IntColumn("frequency", []int64{1000, 1000, 1500, 1500}),
		),
		"cpu_frequency_devlib": fourCPUDevlib(t),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	merged, err := tr.Get("cpu_frequency")
	require.NoError(t, err)
	require.Equal(t, 12, merged.Len())
	assert.Equal(t, []float64{1, 1, 1, 1, 5, 5, 6, 6, 9, 9, 9, 9}, merged.Times())

	cpu, _ := merged.Column("cpu")
	freq, _ := merged.Column("frequency")
	assert.Equal(t, []int64{0, 1, 2, 3, 0, 1, 2, 3, 0, 1, 2, 3}, cpu.Ints())
	assert.Equal(t, []int64{800, 800, 1400, 1400, 1000, 1000, 1500, 1500, 850, 850, 1450, 1450},
		freq.Ints())

	assert.True(t, tr.FreqCoherent())
	assert.Nil(t, tr.FreqIncoherency())

	// The synthetic table itself got the OS column names.
	devlib, err := tr.Get("cpu_frequency_devlib")
	require.NoError(t, err)
	assert.True(t, devlib.HasColumn("cpu"))
	assert.True(t, devlib.HasColumn("frequency"))
	assert.False(t, devlib.HasColumn("cpu_id"))
}

func TestFrequency_RejectsOverlappingSamples(t *testing.T) {
	// OS samples for every domain both before the leading and after the
	// trailing synthetic samples: nothing can be inserted.
	tables := map[string]*Table{
		"cpu_frequency": mustTable(t, "cpu_frequency", []float64{0.5, 0.5, 9.5, 9.5},
			types.IntColumn("cpu", []int64{0, 2, 1, 3}),
			types.IntColumn("frequency", []int64{1000, 1500, 1000, 1500}),
		),
		"cpu_frequency_devlib": fourCPUDevlib(t),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	merged, err := tr.Get("cpu_frequency")
	require.NoError(t, err)
	assert.Equal(t, 4, merged.Len())
	assert.Equal(t, []float64{0.5, 0.5, 9.5, 9.5}, merged.Times())
}

func TestFrequency_PartialInsert(t *testing.T) {
	// OS samples only overlap the little domain's leading samples; the big
	// domain and both trailing runs are inserted.
	tables := map[string]*Table{
		"cpu_frequency": mustTable(t, "cpu_frequency", []float64{0.5, 0.5},
			types.IntColumn("cpu", []int64{0, 1}),
			types.IntColumn("frequency", []int64{1000, 1000}),
		),
		"cpu_frequency_devlib": fourCPUDevlib(t),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	merged, err := tr.Get("cpu_frequency")
	require.NoError(t, err)
	require.Equal(t, 8, merged.Len())
	assert.Equal(t, []float64{0.5, 0.5, 1, 1, 9, 9, 9, 9}, merged.Times())

	cpu, _ := merged.Column("cpu")
	assert.Equal(t, []int64{0, 1, 2, 3, 0, 1, 2, 3}, cpu.Ints())
}

func TestFrequency_PromotesDevlibWithoutOSEvents(t *testing.T) {
	tables := map[string]*Table{
		"cpu_frequency_devlib": fourCPUDevlib(t),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	require.True(t, tr.Has("cpu_frequency"))
	promoted, err := tr.Get("cpu_frequency")
	require.NoError(t, err)
	assert.Equal(t, 8, promoted.Len())
	assert.True(t, promoted.HasColumn("cpu"))
	assert.True(t, promoted.HasColumn("frequency"))
	assert.True(t, tr.FreqCoherent())
}

func TestFrequency_DetectsIncoherentDomain(t *testing.T) {
	tables := map[string]*Table{
		"cpu_frequency": mustTable(t, "cpu_frequency", []float64{5, 5},
			types.IntColumn("cpu", []int64{0, 1}),
			types.IntColumn("frequency", []int64{1000, 1100}),
		),
		"cpu_frequency_devlib": fourCPUDevlib(t),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10,
		Platform: bigLittlePlatform()})
	require.NoError(t, err)

	assert.False(t, tr.FreqCoherent())
	failure := tr.FreqIncoherency()
	require.NotNil(t, failure)
	assert.Equal(t, []int{0, 1}, failure.Domain)
	assert.Equal(t, 2, failure.ChunkStart)
	assert.Equal(t, 5.0, failure.Timestamp)
}

func TestFrequency_NoPlatformLeavesTablesAlone(t *testing.T) {
	tables := map[string]*Table{
		"cpu_frequency_devlib": fourCPUDevlib(t),
	}
	tr, err := New(Input{Tables: tables, Format: FormatFTrace, Duration: 10})
	require.NoError(t, err)

	assert.False(t, tr.Has("cpu_frequency"))
	devlib, err := tr.Get("cpu_frequency_devlib")
	require.NoError(t, err)
	assert.True(t, devlib.HasColumn("cpu_id"))
	assert.True(t, tr.FreqCoherent())
}
