// Package trace turns decoded kernel trace events into queryable
// per-event tables and derived signals. A Trace owns one table per
// event, normalizes timestamps against the capture base time, repairs
// scheduler and thermal event quirks left behind by older kernels, and
// exposes windowing, residency and task-name lookups on top of the
// cleaned data.
package trace

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/vdonnefort/lisa/internal/config"
	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/pkg/types"
)

// Input carries everything a decoded trace bundle provides: the raw
// event tables keyed by event name, the capture format and time span,
// optional function profiling rows and the platform description.
type Input struct {
	Tables   map[string]*Table
	Format   Format
	Basetime float64
	Duration float64
	Stats    []FuncStat
	Platform *config.Platform
}

// Trace is a fully loaded and sanitized trace.
type Trace struct {
	store    *Store
	platform *config.Platform
	format   Format
	debug    bool

	startTime float64
	timeRange float64

	funcStats []FuncStat
	tasks     TaskIndex

	overutilizedTime float64
	overutilizedPct  float64

	freqCoherent bool
	freqFailure  *FreqIncoherency

	activeMu      sync.Mutex
	activeSignals map[int64]types.Series

	cpuOnce  sync.Once
	cpuCount int
}

type options struct {
	normalize bool
	window    bool
	winStart  float64
	winEnd    float64
	debug     bool
}

// Option adjusts how a trace is loaded.
type Option func(*options)

// WithNormalizedTime controls whether timestamps are rebased so the
// trace starts at zero. Enabled by default.
func WithNormalizedTime(enabled bool) Option {
	return func(o *options) { o.normalize = enabled }
}

// WithWindow drops every record outside [start, end] before the trace
// is sanitized. Bounds are expressed in the trace's own time base, so
// with normalized time a window starts from zero. A negative end keeps
// everything from start onwards; a start after a non-negative end fails
// loading.
func WithWindow(start, end float64) Option {
	return func(o *options) {
		o.window = true
		o.winStart = start
		o.winEnd = end
	}
}

// WithDebug enables verbose logging during loading.
func WithDebug(enabled bool) Option {
	return func(o *options) { o.debug = enabled }
}

// New builds a Trace from decoded bundle data. Tables are registered,
// timestamps normalized, the optional window applied, and the
// event-specific sanitizers run. Loading fails when the bundle holds
// neither a usable event nor function stats.
func New(in Input, opts ...Option) (*Trace, error) {
	o := options{normalize: true, winEnd: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.window && o.winEnd >= 0 && o.winStart > o.winEnd {
		return nil, errors.NewConfigError(errors.CodeInvalidWindow,
			fmt.Sprintf("window start %v is after end %v", o.winStart, o.winEnd))
	}

	tr := &Trace{
		store:         NewStore(),
		platform:      in.Platform,
		format:        in.Format,
		debug:         o.debug,
		freqCoherent:  true,
		activeSignals: make(map[int64]types.Series),
		tasks:         TaskIndex{byPID: make(map[int64]string)},
		funcStats:     append([]FuncStat(nil), in.Stats...),
	}
	sort.Slice(tr.funcStats, func(a, b int) bool {
		if tr.funcStats[a].CPU != tr.funcStats[b].CPU {
			return tr.funcStats[a].CPU < tr.funcStats[b].CPU
		}
		return tr.funcStats[a].Function < tr.funcStats[b].Function
	})

	for name, t := range in.Tables {
		if t == nil {
			continue
		}
		tr.store.Register(name, t)
	}

	if o.normalize {
		tr.startTime = 0
		for _, t := range tr.store.tables {
			ts := t.Times()
			for i := range ts {
				ts[i] -= in.Basetime
			}
		}
	} else {
		tr.startTime = in.Basetime
	}

	tr.timeRange = in.Duration
	if tr.timeRange <= 0 {
		tr.timeRange = tr.dataSpan()
	}

	if o.window {
		for name, t := range tr.store.tables {
			src := t
			tr.store.tables[name] = src.FilterRows(func(i int) bool {
				ts := src.Time(i)
				if ts < o.winStart {
					return false
				}
				return o.winEnd < 0 || ts <= o.winEnd
			})
		}
	}

	tr.store.Finalize()

	if len(tr.store.Available()) == 0 && len(tr.funcStats) == 0 {
		return nil, errors.New(errors.ErrCategoryEvent, errors.CodeNotAvailable,
			"trace contains no useful events nor function stats")
	}

	tr.scanTasks()

	if err := tr.sanitize(); err != nil {
		return nil, err
	}
	return tr, nil
}

// dataSpan derives the trace duration from the recorded timestamps when
// the bundle metadata does not carry one.
func (tr *Trace) dataSpan() float64 {
	first, last := math.Inf(1), math.Inf(-1)
	for _, t := range tr.store.tables {
		if t.Len() == 0 {
			continue
		}
		if t.Time(0) < first {
			first = t.Time(0)
		}
		if end := t.Time(t.Len() - 1); end > last {
			last = end
		}
	}
	if last <= first {
		return 0
	}
	return last - first
}

// Get returns the table for one event, or a not-available error naming
// the events the trace does hold.
func (tr *Trace) Get(name string) (*Table, error) {
	return tr.store.Get(name)
}

// Has reports whether the event was captured with at least one record.
func (tr *Trace) Has(name string) bool {
	return tr.store.Has(name)
}

// HasAll reports whether every named event is available.
func (tr *Trace) HasAll(names ...string) bool {
	return tr.store.HasAll(names...)
}

// Available lists the events that carry data, sorted by name.
func (tr *Trace) Available() []string {
	return tr.store.Available()
}

// Names lists the registered event names containing substr.
func (tr *Trace) Names(substr string) []string {
	return tr.store.Names(substr)
}

// Format returns the capture format the bundle declared.
func (tr *Trace) Format() Format {
	return tr.format
}

// Platform returns the platform description the trace was loaded with,
// or nil when none was provided.
func (tr *Trace) Platform() *config.Platform {
	return tr.platform
}

// StartTime is the timestamp the trace starts at: zero with normalized
// time, the capture base time otherwise.
func (tr *Trace) StartTime() float64 {
	return tr.startTime
}

// EndTime is the timestamp the trace ends at.
func (tr *Trace) EndTime() float64 {
	return tr.startTime + tr.timeRange
}

// TimeRange is the duration covered by the trace.
func (tr *Trace) TimeRange() float64 {
	return tr.timeRange
}

// OverutilizedTime is the cumulated time the scheduler reported the
// system overutilized, zero when sched_overutilized was not captured.
func (tr *Trace) OverutilizedTime() float64 {
	return tr.overutilizedTime
}

// OverutilizedPct is OverutilizedTime as a percentage of the trace
// duration.
func (tr *Trace) OverutilizedPct() float64 {
	return tr.overutilizedPct
}

// FreqCoherent reports whether every frequency domain switched
// frequencies in lockstep throughout the trace.
func (tr *Trace) FreqCoherent() bool {
	return tr.freqCoherent
}

// FreqIncoherency describes the first frequency coherency violation
// found, or nil when the domains are coherent.
func (tr *Trace) FreqIncoherency() *FreqIncoherency {
	if tr.freqFailure == nil {
		return nil
	}
	f := *tr.freqFailure
	f.Domain = append([]int(nil), tr.freqFailure.Domain...)
	return &f
}

// CPUCount returns the number of CPUs, from the platform description
// when present and otherwise inferred from the highest CPU that emitted
// a record.
func (tr *Trace) CPUCount() int {
	tr.cpuOnce.Do(func() {
		if tr.platform != nil && tr.platform.CPUs > 0 {
			tr.cpuCount = tr.platform.CPUs
			return
		}
		maxCPU := int64(-1)
		for _, name := range tr.store.Available() {
			t, ok := tr.store.raw(name)
			if !ok {
				continue
			}
			col, ok := t.Column("__cpu")
			if !ok {
				continue
			}
			for i := 0; i < t.Len(); i++ {
				if v, ok := col.Number(i); ok && int64(v) > maxCPU {
					maxCPU = int64(v)
				}
			}
		}
		tr.cpuCount = int(maxCPU) + 1
	})
	return tr.cpuCount
}

// EventDeltas returns a copy of the named event table with a column of
// per-record durations, each record lasting until the next one and the
// last until the end of the trace.
func (tr *Trace) EventDeltas(name, col string) (*Table, error) {
	t, err := tr.store.Get(name)
	if err != nil {
		return nil, err
	}
	return WithDeltas(t, tr.EndTime(), col)
}

// SquashEvent returns the named event table restricted to [start, end],
// with the duration column recomputed so that durations sum to the
// window length. The column is added first when the table does not
// already carry it.
func (tr *Trace) SquashEvent(name string, start, end float64, col string) (*Table, error) {
	t, err := tr.store.Get(name)
	if err != nil {
		return nil, err
	}
	c := t.Clone()
	if !c.HasColumn(col) {
		if err := AddDeltas(c, tr.EndTime(), col); err != nil {
			return nil, err
		}
	}
	return Squash(c, start, end, col)
}
