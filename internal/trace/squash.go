package trace

import (
	"fmt"
	"sort"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/pkg/types"
)

// Squash slices a delta-annotated table to [start, end] and guarantees
// records at exactly those boundaries. A record whose interval straddles
// start is pushed inside the window with its duration trimmed; the last
// record's duration is trimmed to stop at end. Given the 15/16/17/18
// on/off table, Squash(t, 16.5, 17.5) yields rows at 16.5 and 17 of 0.5s
// each. The source table is never modified.
func Squash(t *Table, start, end float64, col string) (*Table, error) {
	if t.Len() == 0 {
		return t.Clone(), nil
	}

	deltas, ok := t.Column(col)
	if !ok {
		return nil, errors.New(errors.ErrCategorySchema, errors.CodeMissingColumn,
			fmt.Sprintf("event %q has no column %q", t.name, col))
	}
	if deltas.Kind() != types.KindFloat {
		return nil, errors.New(errors.ErrCategorySchema, errors.CodeKindMismatch,
			fmt.Sprintf("event %q column %q is %s, want float", t.name, col, deltas.Kind()))
	}
	dv := deltas.Floats()

	// Records cover [ts, ts+delta); nothing exists past the last interval.
	last := t.Len() - 1
	if tableEnd := t.ts[last] + dv[last]; end > tableEnd {
		end = tableEnd
	}

	out := t.Empty()
	if start > end {
		return out, nil
	}

	// lo..hi-1 are the records inside [start, end]; lo-1, when it exists,
	// is the closest record before the window.
	lo := sort.SearchFloat64s(t.ts, start)
	hi := sort.Search(t.Len(), func(i int) bool { return t.ts[i] > end })

	startsOnRecord := lo < t.Len() && t.ts[lo] == start

	if lo > 0 && !startsOnRecord {
		if err := out.appendRowFrom(t, lo-1, start); err != nil {
			return nil, err
		}
		next := end
		if lo < hi {
			next = t.ts[lo]
		}
		outDeltas, _ := out.Column(col)
		if err := outDeltas.SetFloat(0, min(next-start, end-start)); err != nil {
			return nil, err
		}
	}

	if lo < hi {
		for i := lo; i < hi; i++ {
			if err := out.appendRowFrom(t, i, t.ts[i]); err != nil {
				return nil, err
			}
		}
		n := out.Len()
		if out.ts[n-1] == end {
			// The last record collides with the window end; every
			// record at that timestamp is dropped.
			keep := n
			for keep > 0 && out.ts[keep-1] == end {
				keep--
			}
			out = out.Slice(0, keep)
		} else {
			outDeltas, _ := out.Column(col)
			clamped := min(end-out.ts[n-1], outDeltas.Floats()[n-1])
			if err := outDeltas.SetFloat(n-1, clamped); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}
