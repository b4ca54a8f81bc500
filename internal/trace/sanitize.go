package trace

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/vdonnefort/lisa/pkg/types"
)

// schedLoadScale is the kernel's fixed-point scale for load and
// utilization signals.
const schedLoadScale = 1024

// sanitizeRule binds one event name to its normalization transform. Rules
// run in declaration order; renames come before the derivations that read
// renamed columns. A rule is skipped when its event is unavailable, and
// every transform converges on a second application.
type sanitizeRule struct {
	event string
	apply func(*Trace, *Table) error
}

var sanitizeRules = []sanitizeRule{
	{"sched_load_avg_cpu", (*Trace).sanitizeLoadAvgCPU},
	{"sched_load_avg_task", (*Trace).sanitizeLoadAvgTask},
	{"cpu_capacity", (*Trace).sanitizeCPUCapacity},
	{"sched_boost_cpu", (*Trace).sanitizeBoostCPU},
	{"sched_boost_task", (*Trace).sanitizeBoostTask},
	{"sched_energy_diff", (*Trace).sanitizeEnergyDiff},
	{"sched_overutilized", (*Trace).sanitizeOverutilized},
	{"cpu_frequency_devlib", (*Trace).sanitizeFrequency},
	{"thermal_power_cpu_get_power", (*Trace).sanitizeThermalCPUMask},
	{"thermal_power_cpu_limit", (*Trace).sanitizeThermalCPUMask},
}

// sanitize runs every rule whose event is available.
func (tr *Trace) sanitize() error {
	for _, r := range sanitizeRules {
		if !tr.store.Has(r.event) {
			continue
		}
		t, _ := tr.store.raw(r.event)
		if err := r.apply(tr, t); err != nil {
			return fmt.Errorf("trace: sanitize %s: %w", r.event, err)
		}
	}
	return nil
}

// sanitizeLoadAvgCPU renames the v5.0 CPU load tracking fields to their
// v5.1 names.
func (tr *Trace) sanitizeLoadAvgCPU(t *Table) error {
	if !t.HasColumn("utilization") {
		return nil
	}
	if err := t.RenameColumn("utilization", "util_avg"); err != nil {
		return err
	}
	return t.RenameColumn("load", "load_avg")
}

// sanitizeLoadAvgTask renames the v5.0 task load tracking fields to their
// v5.1 names.
func (tr *Trace) sanitizeLoadAvgTask(t *Table) error {
	if !t.HasColumn("utilization") {
		return nil
	}
	for _, r := range [][2]string{
		{"utilization", "util_avg"},
		{"load", "load_avg"},
		{"avg_period", "period_contrib"},
		{"runnable_avg_sum", "load_sum"},
		{"running_avg_sum", "util_sum"},
	} {
		if err := t.RenameColumn(r[0], r[1]); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeCPUCapacity adds per-CPU max and tipping-point capacities,
// selected by cluster membership. Needs an energy model on a big.LITTLE
// platform.
func (tr *Trace) sanitizeCPUCapacity(t *Table) error {
	p := tr.platform
	if p == nil || p.NrgModel == nil || !p.HasBigLittle() {
		return nil
	}
	if t.HasColumn("max_capacity") {
		return nil
	}
	cpuCol, ok := t.Column("cpu")
	if !ok {
		return nil
	}

	maxLittle := p.NrgModel.Little.CPU.CapMax
	maxBig := p.NrgModel.Big.CPU.CapMax

	maxCap := make([]float64, t.Len())
	tipCap := make([]float64, t.Len())
	for i := 0; i < t.Len(); i++ {
		cpu, ok := cpuCol.Number(i)
		if !ok {
			return nil
		}
		c := maxBig
		if p.InCluster("little", int64(cpu)) {
			c = maxLittle
		}
		maxCap[i] = c
		tipCap[i] = 0.8 * c
	}

	if err := t.AddColumn(types.FloatColumn("max_capacity", maxCap)); err != nil {
		return err
	}
	return t.AddColumn(types.FloatColumn("tip_capacity", tipCap))
}

// sanitizeBoostCPU renames the v5.0 usage field and derives the boosted
// utilization signal.
func (tr *Trace) sanitizeBoostCPU(t *Table) error {
	if err := t.RenameColumn("usage", "util"); err != nil {
		return err
	}
	return addBoostedUtil(t)
}

// sanitizeBoostTask renames the v5.0 utilization field and derives the
// boosted utilization signal.
func (tr *Trace) sanitizeBoostTask(t *Table) error {
	if err := t.RenameColumn("utilization", "util"); err != nil {
		return err
	}
	return addBoostedUtil(t)
}

// addBoostedUtil adds boosted_util as the per-record sum of util and
// margin.
func addBoostedUtil(t *Table) error {
	if t.HasColumn("boosted_util") {
		return nil
	}
	util, okU := t.Column("util")
	margin, okM := t.Column("margin")
	if !okU || !okM {
		return nil
	}

	if util.Kind() == types.KindInt && margin.Kind() == types.KindInt {
		sum := make([]int64, t.Len())
		for i, u := range util.Ints() {
			sum[i] = u + margin.Ints()[i]
		}
		return t.AddColumn(types.IntColumn("boosted_util", sum))
	}

	sum := make([]float64, t.Len())
	for i := 0; i < t.Len(); i++ {
		u, okU := util.Number(i)
		m, okM := margin.Number(i)
		if !okU || !okM {
			return nil
		}
		sum[i] = u + m
	}
	return t.AddColumn(types.FloatColumn("boosted_util", sum))
}

// sanitizeEnergyDiff renames the energy diff fields and, with an energy
// model on a big.LITTLE platform, derives the normalized energy delta and
// the scheduling decision buckets.
func (tr *Trace) sanitizeEnergyDiff(t *Table) error {
	p := tr.platform
	if p == nil || p.NrgModel == nil || !p.HasBigLittle() {
		return nil
	}

	powerMax := p.MaxSystemEnergy()
	if tr.debug {
		log.Printf("trace: maximum estimated system energy: %.0f", powerMax)
	}

	for _, r := range [][2]string{
		{"nrg_d", "nrg_diff"},
		{"utl_d", "usage_delta"},
		{"payoff", "nrg_payoff"},
	} {
		if err := t.RenameColumn(r[0], r[1]); err != nil {
			return err
		}
	}

	if nrgDiff, ok := t.Column("nrg_diff"); ok && !t.HasColumn("nrg_diff_pct") && powerMax != 0 {
		pct := make([]float64, t.Len())
		for i := 0; i < t.Len(); i++ {
			v, ok := nrgDiff.Number(i)
			if !ok {
				return nil
			}
			pct[i] = schedLoadScale * v / powerMax
		}
		if err := t.AddColumn(types.FloatColumn("nrg_diff_pct", pct)); err != nil {
			return err
		}
	}

	if usageDelta, ok := t.Column("usage_delta"); ok && !t.HasColumn("usage_delta_group") {
		groups := make([]string, t.Len())
		for i := 0; i < t.Len(); i++ {
			v, ok := usageDelta.Number(i)
			if !ok {
				return nil
			}
			groups[i] = usageDeltaGroup(v)
		}
		if err := t.AddColumn(types.StringColumn("usage_delta_group", groups)); err != nil {
			return err
		}
	}

	if payoff, ok := t.Column("nrg_payoff"); ok && !t.HasColumn("nrg_payoff_group") {
		groups := make([]string, t.Len())
		for i := 0; i < t.Len(); i++ {
			v, ok := payoff.Number(i)
			if !ok {
				return nil
			}
			groups[i] = nrgPayoffGroup(v)
		}
		if err := t.AddColumn(types.StringColumn("nrg_payoff_group", groups)); err != nil {
			return err
		}
	}

	return nil
}

func usageDeltaGroup(v float64) string {
	switch {
	case v < 150:
		return "< 150"
	case v < 400:
		return "< 400"
	case v < 600:
		return "< 600"
	default:
		return ">= 600"
	}
}

func nrgPayoffGroup(v float64) string {
	switch {
	case v > 2e9:
		return "Optimal Accept"
	case v > 0:
		return "SchedTune Accept"
	case v > -2e9:
		return "SchedTune Reject"
	default:
		return "Suboptimal Reject"
	}
}

// sanitizeOverutilized adds the state duration column and folds it into
// the trace-wide overutilization scalars.
func (tr *Trace) sanitizeOverutilized(t *Table) error {
	if !t.HasColumn("len") {
		if err := AddDeltas(t, tr.startTime+tr.timeRange, "len"); err != nil {
			return err
		}
	}

	lens, _ := t.Column("len")
	over, ok := t.Column("overutilized")
	if !ok {
		return nil
	}

	var total float64
	for i := 0; i < t.Len(); i++ {
		state, okS := over.Number(i)
		d, okD := lens.Number(i)
		if okS && okD && state == 1 {
			total += d
		}
	}

	tr.overutilizedTime = total
	if tr.timeRange > 0 {
		tr.overutilizedPct = 100 * total / tr.timeRange
	}

	if tr.debug {
		log.Printf("trace: overutilized time: %.6f [s] (%.3f%% of trace time)",
			tr.overutilizedTime, tr.overutilizedPct)
	}
	return nil
}

// sanitizeThermalCPUMask decodes the "00000000,0000000f" CPU mask strings
// into integers.
func (tr *Trace) sanitizeThermalCPUMask(t *Table) error {
	col, ok := t.Column("cpus")
	if !ok || col.Kind() != types.KindString {
		return nil
	}

	masks := make([]int64, t.Len())
	for i, s := range col.Strings() {
		v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 16, 64)
		if err != nil {
			return fmt.Errorf("decode cpus mask %q: %w", s, err)
		}
		masks[i] = v
	}
	return t.ReplaceColumn("cpus", types.IntColumn("cpus", masks))
}
