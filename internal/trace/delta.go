package trace

import (
	"github.com/vdonnefort/lisa/pkg/types"
)

// AddDeltas adds a column holding, per record, the time until the next
// record, with the last record running until traceEnd. Only meaningful for
// events tracking an on/off state. An empty table is left unchanged;
// adding over an existing column fails. The sum of the column equals
// traceEnd minus the first timestamp.
func AddDeltas(t *Table, traceEnd float64, col string) error {
	if t.Len() == 0 {
		return nil
	}

	deltas := make([]float64, t.Len())
	for i := 0; i+1 < t.Len(); i++ {
		deltas[i] = t.ts[i+1] - t.ts[i]
	}
	deltas[t.Len()-1] = traceEnd - t.ts[t.Len()-1]

	return t.AddColumn(types.FloatColumn(col, deltas))
}

// WithDeltas returns a copy of the table with the delta column added,
// leaving the original untouched.
func WithDeltas(t *Table, traceEnd float64, col string) (*Table, error) {
	out := t.Clone()
	if err := AddDeltas(out, traceEnd, col); err != nil {
		return nil, err
	}
	return out, nil
}
