package trace

import (
	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/pkg/types"
)

// nonIdleState is the cpu_idle state value reported when a CPU leaves
// idle.
const nonIdleState = -1

// ActiveSignal builds a square wave of the CPU's non-idle occupancy: 1
// while cpu_idle reports the CPU active, 0 while idle. The wave always
// starts at trace start; when the first transition comes later, the prior
// state is its logical inverse. A CPU with no transitions is idle for the
// whole trace. Signals are computed once per CPU and shared afterwards;
// callers get an independent copy.
func (tr *Trace) ActiveSignal(cpu int64) (types.Series, error) {
	tr.activeMu.Lock()
	defer tr.activeMu.Unlock()

	if cached, ok := tr.activeSignals[cpu]; ok {
		return cached.Clone(), nil
	}

	idle, err := tr.store.Get("cpu_idle")
	if err != nil {
		return types.Series{}, err
	}

	cpuID, okC := idle.Column("cpu_id")
	state, okS := idle.Column("state")
	if !okC || !okS {
		return types.Series{}, errors.New(errors.ErrCategorySchema, errors.CodeMissingColumn,
			"event \"cpu_idle\" is missing its cpu_id or state column")
	}

	var s types.Series
	for i := 0; i < idle.Len(); i++ {
		id, ok := cpuID.Number(i)
		if !ok || int64(id) != cpu {
			continue
		}
		v := 0.0
		if st, ok := state.Number(i); ok && int64(st) == nonIdleState {
			v = 1.0
		}
		s.Times = append(s.Times, idle.Time(i))
		s.Values = append(s.Values, v)
	}

	switch {
	case s.Len() == 0:
		s = types.Series{Times: []float64{tr.startTime}, Values: []float64{0}}
	case s.Times[0] != tr.startTime:
		inverse := 1 - s.Values[0]
		s.Times = append([]float64{tr.startTime}, s.Times...)
		s.Values = append([]float64{inverse}, s.Values...)
	}

	s = dedupeKeepLast(s)

	tr.activeSignals[cpu] = s
	return s.Clone(), nil
}

// dedupeKeepLast collapses samples sharing a timestamp down to the last
// one, removing zero-duration wakeup/sleep flaps.
func dedupeKeepLast(s types.Series) types.Series {
	if s.Len() < 2 {
		return s
	}
	out := types.Series{}
	for i := 0; i < s.Len(); i++ {
		if i+1 < s.Len() && s.Times[i+1] == s.Times[i] {
			continue
		}
		out.Times = append(out.Times, s.Times[i])
		out.Values = append(out.Values, s.Values[i])
	}
	return out
}
