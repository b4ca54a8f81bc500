package trace

// FuncStat is one row of kernel function profiling data: how often a
// function was hit on a CPU and how long it ran there.
type FuncStat struct {
	CPU      int     `json:"cpu"`
	Function string  `json:"function"`
	Hits     int64   `json:"hits"`
	Avg      float64 `json:"avg"`
	Time     float64 `json:"time"`
	S2       float64 `json:"s_2"`
}

// HasFunctionStats reports whether function profiling data was loaded
// alongside the trace.
func (tr *Trace) HasFunctionStats() bool {
	return len(tr.funcStats) > 0
}

// FunctionStats returns the profiling rows, restricted to the named
// functions when any are given. Rows are ordered by CPU and then by
// function name.
func (tr *Trace) FunctionStats(functions ...string) []FuncStat {
	if len(functions) == 0 {
		out := make([]FuncStat, len(tr.funcStats))
		copy(out, tr.funcStats)
		return out
	}
	wanted := make(map[string]bool, len(functions))
	for _, fn := range functions {
		wanted[fn] = true
	}
	var out []FuncStat
	for _, fs := range tr.funcStats {
		if wanted[fs.Function] {
			out = append(out, fs)
		}
	}
	return out
}
