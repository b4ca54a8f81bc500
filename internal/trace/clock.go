package trace

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/pkg/types"
)

// PeripheralClockRate reconstructs the effective rate of one peripheral
// clock from its clock_set_rate, clock_enable and clock_disable records.
// Set-rate records update the rate, enable/disable records update the
// gating state; both carry forward until the next record. The
// effective_rate column is 0 while gated, the programmed rate while
// enabled, and NaN while the state or rate is still unknown. A "len"
// column holds each record's duration, like the on/off state tables.
func (tr *Trace) PeripheralClockRate(clkName string) (*Table, error) {
	if clkName == "" {
		return nil, fmt.Errorf("trace: no clock name specified")
	}

	rateTable, err := tr.store.Get("clock_set_rate")
	if err != nil {
		return nil, err
	}

	type sample struct {
		ts    float64
		rate  float64
		state float64
	}
	var samples []sample

	collect := func(t *Table, rateRow bool) {
		nameCol, okN := t.Column("clk_name")
		if !okN || nameCol.Kind() != types.KindString {
			return
		}
		valName := "state"
		if rateRow {
			valName = "rate"
		}
		val, okV := t.Column(valName)
		if !okV {
			return
		}
		for i := 0; i < t.Len(); i++ {
			if nameCol.Strings()[i] != clkName {
				continue
			}
			v, ok := val.Number(i)
			if !ok {
				continue
			}
			s := sample{ts: t.Time(i), rate: math.NaN(), state: math.NaN()}
			if rateRow {
				s.rate = v
			} else {
				s.state = v
			}
			samples = append(samples, s)
		}
	}

	collect(rateTable, true)
	for _, event := range []string{"clock_enable", "clock_disable"} {
		if !tr.store.Has(event) {
			continue
		}
		t, _ := tr.store.raw(event)
		collect(t, false)
	}

	if len(samples) == 0 {
		log.Printf("[WARN] trace: no events for clock %s found in trace", clkName)
		err := errors.New(errors.ErrCategoryEvent, errors.CodeNotAvailable,
			fmt.Sprintf("no events for clock %q", clkName))
		return nil, err.WithDetails(map[string]interface{}{"clk_name": clkName})
	}

	sort.SliceStable(samples, func(a, b int) bool { return samples[a].ts < samples[b].ts })

	n := len(samples)
	ts := make([]float64, n)
	names := make([]string, n)
	rates := make([]float64, n)
	states := make([]float64, n)
	effective := make([]float64, n)

	rate, state := math.NaN(), math.NaN()
	for i, s := range samples {
		ts[i] = s.ts
		names[i] = clkName
		if !math.IsNaN(s.rate) {
			rate = s.rate
		}
		if !math.IsNaN(s.state) {
			state = s.state
		}
		rates[i] = rate
		states[i] = state
		switch state {
		case 0:
			effective[i] = 0
		case 1:
			effective[i] = rate
		default:
			effective[i] = math.NaN()
		}
	}

	out, err := NewTable("clock_"+clkName, ts,
		types.StringColumn("clk_name", names),
		types.FloatColumn("state", states),
		types.FloatColumn("rate", rates),
		types.FloatColumn("effective_rate", effective),
	)
	if err != nil {
		return nil, err
	}
	if err := AddDeltas(out, tr.startTime+tr.timeRange, "len"); err != nil {
		return nil, err
	}
	return out, nil
}
