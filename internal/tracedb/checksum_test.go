package tracedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/pkg/types"
)

func checksumTable(t *testing.T, ts []float64, cols ...*types.Column) *trace.Table {
	t.Helper()
	tbl, err := trace.NewTable("sched_switch", ts, cols...)
	require.NoError(t, err)
	return tbl
}

func TestTableChecksum_Deterministic(t *testing.T) {
	a := checksumTable(t, []float64{1, 2, 3},
		types.IntColumn("next_pid", []int64{10, 20, 30}),
		types.StringColumn("next_comm", []string{"a", "b", "c"}))
	b := checksumTable(t, []float64{1, 2, 3},
		types.IntColumn("next_pid", []int64{10, 20, 30}),
		types.StringColumn("next_comm", []string{"a", "b", "c"}))

	sum := tableChecksum(a)
	assert.NotEmpty(t, sum)
	assert.Equal(t, sum, tableChecksum(b))
}

func TestTableChecksum_SensitiveToValues(t *testing.T) {
	base := checksumTable(t, []float64{1, 2},
		types.IntColumn("next_pid", []int64{10, 20}))
	value := checksumTable(t, []float64{1, 2},
		types.IntColumn("next_pid", []int64{10, 21}))
	axis := checksumTable(t, []float64{1, 2.5},
		types.IntColumn("next_pid", []int64{10, 20}))

	assert.NotEqual(t, tableChecksum(base), tableChecksum(value))
	assert.NotEqual(t, tableChecksum(base), tableChecksum(axis))
}

func TestTableChecksum_SensitiveToColumnOrder(t *testing.T) {
	ab := checksumTable(t, []float64{1},
		types.IntColumn("prev_pid", []int64{1}),
		types.IntColumn("next_pid", []int64{2}))
	ba := checksumTable(t, []float64{1},
		types.IntColumn("next_pid", []int64{2}),
		types.IntColumn("prev_pid", []int64{1}))

	assert.NotEqual(t, tableChecksum(ab), tableChecksum(ba))
}

func TestTableChecksum_StringBoundaries(t *testing.T) {
	// The NUL terminator keeps adjacent strings from running together.
	ab := checksumTable(t, []float64{1},
		types.StringColumn("prev_comm", []string{"ab"}),
		types.StringColumn("next_comm", []string{"c"}))
	bc := checksumTable(t, []float64{1},
		types.StringColumn("prev_comm", []string{"a"}),
		types.StringColumn("next_comm", []string{"bc"}))

	assert.NotEqual(t, tableChecksum(ab), tableChecksum(bc))
}
