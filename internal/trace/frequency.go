package trace

import (
	"log"
	"sort"
)

// FreqIncoherency describes the first observed violation of per-domain
// frequency coherency: a run of samples for one domain where not every CPU
// reported the same frequency.
type FreqIncoherency struct {
	// Domain is the CPU set expected to scale together
	Domain []int `json:"domain"`

	// ChunkStart is the offset of the offending run within the domain's
	// samples
	ChunkStart int `json:"chunk_start"`

	// Timestamp is the time of the first sample in the offending run
	Timestamp float64 `json:"timestamp"`
}

// sanitizeFrequency folds the synthetic frequency samples emitted around
// the capture into the OS-generated cpu_frequency table and verifies that
// every frequency domain scales coherently. The synthetic table carries one
// leading sample per CPU taken before the capture and one trailing sample
// per CPU taken after it; they are inserted per domain only when they do
// not overlap the OS samples for that domain.
func (tr *Trace) sanitizeFrequency(devlib *Table) error {
	if tr.platform == nil || len(tr.platform.FreqDomains) == 0 {
		return nil
	}
	domains := tr.platform.FreqDomains

	if err := devlib.RenameColumn("cpu_id", "cpu"); err != nil {
		return err
	}
	if err := devlib.RenameColumn("state", "frequency"); err != nil {
		return err
	}

	merged, ok := tr.store.raw("cpu_frequency")
	if !ok || merged.Len() == 0 {
		// No OS samples at all; the synthetic samples are the only
		// frequency data there is.
		tr.store.replace("cpu_frequency", devlib)
		merged = devlib
	} else if devlib.Len() > 0 {
		cpus := tr.CPUCount()
		if cpus > devlib.Len() {
			cpus = devlib.Len()
		}

		var lead, trail []int
		for _, domain := range domains {
			lead = append(lead, insertableRows(devlib, 0, cpus, merged, domain, true)...)
		}
		// Leading inserts count as OS samples for the trailing pass.
		osView := concatRows(merged, devlib, lead)
		for _, domain := range domains {
			trail = append(trail, insertableRows(devlib, cpus, devlib.Len(), osView, domain, false)...)
		}

		merged = sortedByTime(concatRows(merged, devlib, append(lead, trail...)))
		tr.store.replace("cpu_frequency", merged)
	}

	for _, domain := range domains {
		if bad, at := incoherentChunk(merged, domain); bad >= 0 {
			log.Printf("[WARN] trace: cluster frequency is not coherent, failure in [cpu_frequency] events for cpus %v at %.6f", domain, at)
			tr.freqCoherent = false
			tr.freqFailure = &FreqIncoherency{
				Domain:     append([]int(nil), domain...),
				ChunkStart: bad,
				Timestamp:  at,
			}
			return nil
		}
	}
	log.Printf("trace: platform clusters verified to be frequency coherent")
	return nil
}

// insertableRows returns the devlib record indexes in [from, to) belonging
// to the domain, when they can be inserted without interleaving the OS
// samples for that domain: leading samples must all precede the earliest
// OS sample, trailing samples must all follow the latest.
func insertableRows(devlib *Table, from, to int, os *Table, domain []int, leading bool) []int {
	rows := domainRows(devlib, from, to, domain)
	if len(rows) == 0 {
		return nil
	}

	osRows := domainRows(os, 0, os.Len(), domain)
	if len(osRows) > 0 {
		osMin, osMax := timeSpanOf(os, osRows)
		dlMin, dlMax := timeSpanOf(devlib, rows)
		if leading && osMin <= dlMax {
			return nil
		}
		if !leading && osMax >= dlMin {
			return nil
		}
	}
	return rows
}

// timeSpanOf returns the earliest and latest timestamps among the given
// records.
func timeSpanOf(t *Table, rows []int) (float64, float64) {
	min, max := t.Time(rows[0]), t.Time(rows[0])
	for _, i := range rows[1:] {
		ts := t.Time(i)
		if ts < min {
			min = ts
		}
		if ts > max {
			max = ts
		}
	}
	return min, max
}

// domainRows returns the record indexes in [from, to) whose cpu belongs to
// the domain.
func domainRows(t *Table, from, to int, domain []int) []int {
	col, ok := t.Column("cpu")
	if !ok {
		return nil
	}
	var rows []int
	for i := from; i < to; i++ {
		cpu, ok := col.Number(i)
		if !ok {
			return nil
		}
		for _, c := range domain {
			if int64(c) == int64(cpu) {
				rows = append(rows, i)
				break
			}
		}
	}
	return rows
}

// concatRows returns base plus the chosen extra records appended.
func concatRows(base, extra *Table, rows []int) *Table {
	out := base.Clone()
	for _, i := range rows {
		// The schemas match after the devlib renames.
		_ = out.appendRowFrom(extra, i, extra.Time(i))
	}
	return out
}

// sortedByTime returns the table with records stably reordered by
// timestamp.
func sortedByTime(t *Table) *Table {
	order := make([]int, t.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.Time(order[a]) < t.Time(order[b])
	})

	out := t.Empty()
	for _, i := range order {
		_ = out.appendRowFrom(t, i, t.Time(i))
	}
	return out
}

// incoherentChunk verifies one domain of the merged table: its samples,
// taken in runs of len(domain), must all report one frequency. Returns the
// offset and timestamp of the first bad run, or -1.
func incoherentChunk(t *Table, domain []int) (int, float64) {
	rows := domainRows(t, 0, t.Len(), domain)
	freq, ok := t.Column("frequency")
	if !ok || len(domain) == 0 {
		return -1, 0
	}

	for pos := 0; pos < len(rows); pos += len(domain) {
		chunkEnd := pos + len(domain)
		if chunkEnd > len(rows) {
			chunkEnd = len(rows)
		}
		first, okF := freq.Number(rows[pos])
		if !okF {
			return -1, 0
		}
		for _, r := range rows[pos+1 : chunkEnd] {
			f, okF := freq.Number(r)
			if !okF {
				return -1, 0
			}
			if f != first {
				return pos, t.Time(rows[pos])
			}
		}
	}
	return -1, 0
}
