package trace

import (
	"fmt"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/pkg/types"
)

// Table is one event type's records: a non-decreasing timestamp axis in
// seconds plus named typed columns, all of equal length. Duplicate
// timestamps are a pre-existing trace anomaly and are kept as-is.
type Table struct {
	name  string
	ts    []float64
	cols  []*types.Column
	index map[string]int
}

// NewTable builds a table over the given time axis. All columns must match
// the axis length and column names must be unique. Timestamps must be
// non-decreasing.
func NewTable(name string, ts []float64, cols ...*types.Column) (*Table, error) {
	for i := 1; i < len(ts); i++ {
		if ts[i] < ts[i-1] {
			return nil, errors.NewConfigError(errors.CodeUnorderedEvents,
				fmt.Sprintf("event %q row %d: timestamp %v precedes %v", name, i, ts[i], ts[i-1]))
		}
	}

	t := &Table{
		name:  name,
		ts:    ts,
		cols:  make([]*types.Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for _, col := range cols {
		if col.Len() != len(ts) {
			return nil, fmt.Errorf("trace: event %q column %q has %d values for %d timestamps: %w",
				name, col.Name(), col.Len(), len(ts), types.ErrLengthMismatch)
		}
		if _, dup := t.index[col.Name()]; dup {
			return nil, errors.NewSchemaConflict(name, col.Name())
		}
		t.index[col.Name()] = len(t.cols)
		t.cols = append(t.cols, col)
	}
	return t, nil
}

// Name returns the event name the table holds records for.
func (t *Table) Name() string {
	return t.name
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.ts)
}

// Time returns the timestamp of record i.
func (t *Table) Time(i int) float64 {
	return t.ts[i]
}

// Times returns the live timestamp axis. Callers must not modify it.
func (t *Table) Times() []float64 {
	return t.ts
}

// Columns returns the live column list in declaration order. Callers must
// not modify it.
func (t *Table) Columns() []*types.Column {
	return t.cols
}

// Column returns the named column and whether it exists.
func (t *Table) Column(name string) (*types.Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddColumn appends a column. The name must be new and the length must
// match the time axis.
func (t *Table) AddColumn(col *types.Column) error {
	if _, dup := t.index[col.Name()]; dup {
		return errors.NewSchemaConflict(t.name, col.Name())
	}
	if col.Len() != len(t.ts) {
		return fmt.Errorf("trace: event %q column %q has %d values for %d timestamps: %w",
			t.name, col.Name(), col.Len(), len(t.ts), types.ErrLengthMismatch)
	}
	t.index[col.Name()] = len(t.cols)
	t.cols = append(t.cols, col)
	return nil
}

// RenameColumn renames a column in place. A missing old name is a no-op, so
// repeated application converges. Renaming onto an existing column fails.
func (t *Table) RenameColumn(old, new string) error {
	i, ok := t.index[old]
	if !ok {
		return nil
	}
	if _, taken := t.index[new]; taken {
		return errors.NewSchemaConflict(t.name, new)
	}
	t.cols[i].Rename(new)
	delete(t.index, old)
	t.index[new] = i
	return nil
}

// ReplaceColumn swaps the named column for a new one of the same length,
// keeping its position. The replacement may change the column kind.
func (t *Table) ReplaceColumn(name string, col *types.Column) error {
	i, ok := t.index[name]
	if !ok {
		return errors.New(errors.ErrCategorySchema, errors.CodeMissingColumn,
			fmt.Sprintf("event %q has no column %q", t.name, name))
	}
	if col.Len() != len(t.ts) {
		return fmt.Errorf("trace: event %q column %q has %d values for %d timestamps: %w",
			t.name, name, col.Len(), len(t.ts), types.ErrLengthMismatch)
	}
	delete(t.index, name)
	t.index[col.Name()] = i
	t.cols[i] = col
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		name:  t.name,
		ts:    append([]float64(nil), t.ts...),
		cols:  make([]*types.Column, len(t.cols)),
		index: make(map[string]int, len(t.index)),
	}
	for i, col := range t.cols {
		out.cols[i] = col.Clone()
		out.index[col.Name()] = i
	}
	return out
}

// Empty returns a zero-row table with the same name and column schema.
func (t *Table) Empty() *Table {
	out := &Table{
		name:  t.name,
		cols:  make([]*types.Column, len(t.cols)),
		index: make(map[string]int, len(t.index)),
	}
	for i, col := range t.cols {
		out.cols[i] = col.Slice(0, 0)
		out.index[col.Name()] = i
	}
	return out
}

// Slice returns a copying sub-table covering records [i, j).
func (t *Table) Slice(i, j int) *Table {
	out := &Table{
		name:  t.name,
		ts:    append([]float64(nil), t.ts[i:j]...),
		cols:  make([]*types.Column, len(t.cols)),
		index: make(map[string]int, len(t.index)),
	}
	for k, col := range t.cols {
		out.cols[k] = col.Slice(i, j)
		out.index[col.Name()] = k
	}
	return out
}

// appendRowFrom appends record i of src under the given timestamp. The
// tables must share a column schema, which holds for tables derived from
// Empty or Slice.
func (t *Table) appendRowFrom(src *Table, i int, ts float64) error {
	for _, col := range t.cols {
		srcCol, ok := src.Column(col.Name())
		if !ok {
			return errors.New(errors.ErrCategorySchema, errors.CodeMissingColumn,
				fmt.Sprintf("event %q has no column %q", src.name, col.Name()))
		}
		if err := col.AppendFrom(srcCol, i); err != nil {
			return err
		}
	}
	t.ts = append(t.ts, ts)
	return nil
}

// FilterRows returns a new table holding the records the predicate keeps.
func (t *Table) FilterRows(keep func(i int) bool) *Table {
	out := t.Empty()
	for i := range t.ts {
		if keep(i) {
			// appendRowFrom cannot fail here, the schema is shared
			_ = out.appendRowFrom(t, i, t.ts[i])
		}
	}
	return out
}
