package trace

import (
	"log"
	"sort"

	"github.com/vdonnefort/lisa/pkg/types"
)

// TaskIndex maps the PIDs observed in the trace to task names. A PID can
// change names after fork, so the index keeps, per PID, the name from the
// last record in trace order.
type TaskIndex struct {
	byPID map[int64]string
}

// scanTasks builds the index from one identity-bearing event, preferring
// the scheduler switch records and falling back to the load tracking ones.
func (tr *Trace) scanTasks() {
	type source struct {
		event   string
		nameKey string
		pidKey  string
	}
	for _, src := range []source{
		{"sched_switch", "prev_comm", "prev_pid"},
		{"sched_load_avg_task", "comm", "pid"},
	} {
		if !tr.store.Has(src.event) {
			continue
		}
		t, _ := tr.store.raw(src.event)
		names, okN := t.Column(src.nameKey)
		pids, okP := t.Column(src.pidKey)
		if !okN || !okP || names.Kind() != types.KindString {
			continue
		}
		for i := 0; i < t.Len(); i++ {
			pid, ok := pids.Number(i)
			if !ok {
				break
			}
			tr.tasks.byPID[int64(pid)] = names.Strings()[i]
		}
		return
	}
	log.Printf("[WARN] trace: failed to load tasks names from trace events")
}

// TaskByPID returns the name the PID last ran under.
func (tr *Trace) TaskByPID(pid int64) (string, bool) {
	name, ok := tr.tasks.byPID[pid]
	return name, ok
}

// PIDsByName returns the sorted PIDs whose last observed name matches.
func (tr *Trace) PIDsByName(name string) []int64 {
	var pids []int64
	for pid, n := range tr.tasks.byPID {
		if n == name {
			pids = append(pids, pid)
		}
	}
	sort.Slice(pids, func(a, b int) bool { return pids[a] < pids[b] })
	return pids
}

// Tasks returns a copy of the PID to name map.
func (tr *Trace) Tasks() map[int64]string {
	out := make(map[int64]string, len(tr.tasks.byPID))
	for pid, name := range tr.tasks.byPID {
		out[pid] = name
	}
	return out
}

// ResolvePID resolves a task name to the lowest matching PID. The full
// match list is returned so callers can handle ambiguity; ok is false when
// the name never appears.
func (tr *Trace) ResolvePID(name string) (pid int64, all []int64, ok bool) {
	all = tr.PIDsByName(name)
	if len(all) == 0 {
		return 0, nil, false
	}
	if len(all) > 1 {
		log.Printf("[WARN] trace: more than one PID found for task %s, using the first one (%d)", name, all[0])
	}
	return all[0], all, true
}
