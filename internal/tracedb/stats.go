package tracedb

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/internal/trace"
)

// funcStatEntry is one function's profiling record inside trace.stats.
type funcStatEntry struct {
	Hits int64   `json:"hits"`
	Avg  float64 `json:"avg"`
	Time float64 `json:"time"`
	S2   float64 `json:"s_2"`
}

// readFunctionStats parses the optional trace.stats dump. The file maps
// CPU keys to per-function profiling records. A missing file is not an
// error: bundles captured without function profiling simply lack it.
func readFunctionStats(path string) ([]trace.FuncStat, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("read function stats %s", path), err)
	}

	var perCPU map[string]map[string]funcStatEntry
	if err := json.Unmarshal(raw, &perCPU); err != nil {
		return nil, errors.NewBundleError(errors.CodeInvalidFormat,
			fmt.Sprintf("decode function stats %s", path), err)
	}

	var stats []trace.FuncStat
	for key, funcs := range perCPU {
		cpu, err := parseCPUKey(key)
		if err != nil {
			return nil, errors.NewBundleError(errors.CodeInvalidFormat,
				fmt.Sprintf("function stats %s: bad CPU key %q", path, key), err)
		}
		for name, entry := range funcs {
			stats = append(stats, trace.FuncStat{
				CPU:      cpu,
				Function: name,
				Hits:     entry.Hits,
				Avg:      entry.Avg,
				Time:     entry.Time,
				S2:       entry.S2,
			})
		}
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CPU != stats[j].CPU {
			return stats[i].CPU < stats[j].CPU
		}
		return stats[i].Function < stats[j].Function
	})
	return stats, nil
}

// parseCPUKey accepts both bare numbers and "cpuN" style keys.
func parseCPUKey(key string) (int, error) {
	s := strings.TrimSpace(strings.ToLower(key))
	s = strings.TrimPrefix(s, "cpu")
	s = strings.TrimSpace(strings.TrimPrefix(s, ":"))
	return strconv.Atoi(s)
}
