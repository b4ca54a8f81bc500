package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/pkg/types"
)

func TestStore_Availability(t *testing.T) {
	s := NewStore()
	s.Register("sched_switch", mustTable(t, "sched_switch", []float64{1},
		types.IntColumn("prev_pid", []int64{42})))
	s.Register("cpu_idle", mustTable(t, "cpu_idle", nil,
		types.IntColumn("state", nil)))
	s.Finalize()

	assert.True(t, s.Has("sched_switch"))
	assert.False(t, s.Has("cpu_idle"))
	assert.False(t, s.Has("never_registered"))
	assert.Equal(t, []string{"sched_switch"}, s.Available())
}

func TestStore_GetListsAvailable(t *testing.T) {
	s := NewStore()
	s.Register("cpu_frequency", mustTable(t, "cpu_frequency", []float64{1},
		types.IntColumn("cpu", []int64{0})))
	s.Register("cpu_idle", mustTable(t, "cpu_idle", []float64{1},
		types.IntColumn("state", []int64{0})))
	s.Finalize()

	_, err := s.Get("sched_switch")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotAvailable, errors.GetCode(err))
	assert.Contains(t, err.Error(), "cpu_frequency")
	assert.Contains(t, err.Error(), "cpu_idle")
}

func TestStore_NamesSubstring(t *testing.T) {
	s := NewStore()
	for _, name := range []string{"sched_switch", "sched_wakeup", "cpu_idle"} {
		s.Register(name, mustTable(t, name, []float64{1},
			types.IntColumn("v", []int64{0})))
	}
	s.Finalize()

	assert.Equal(t, []string{"sched_switch", "sched_wakeup"}, s.Names("sched"))
	assert.Equal(t, []string{"cpu_idle", "sched_switch", "sched_wakeup"}, s.Names(""))
	assert.Empty(t, s.Names("thermal"))
}

func TestStore_ReplaceTracksAvailability(t *testing.T) {
	s := NewStore()
	s.Register("cpu_frequency", mustTable(t, "cpu_frequency", nil,
		types.IntColumn("cpu", nil)))
	s.Finalize()
	require.Empty(t, s.Available())

	s.replace("cpu_frequency", mustTable(t, "cpu_frequency", []float64{1},
		types.IntColumn("cpu", []int64{0})))
	assert.True(t, s.Has("cpu_frequency"))
	assert.Equal(t, []string{"cpu_frequency"}, s.Available())

	// Promotion of a name never registered before.
	s.replace("cpu_capacity", mustTable(t, "cpu_capacity", []float64{1},
		types.IntColumn("cpu", []int64{0})))
	assert.Equal(t, []string{"cpu_capacity", "cpu_frequency"}, s.Available())
}
