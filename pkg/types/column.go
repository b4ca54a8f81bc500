// Package types provides the column-oriented value model shared by the
// trace engine, the bundle reader and the query surfaces.
package types

import "fmt"

// Kind identifies the native Go representation backing a Column.
type Kind int

const (
	// KindFloat backs the column with []float64
	KindFloat Kind = iota

	// KindInt backs the column with []int64
	KindInt

	// KindString backs the column with []string
	KindString
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is a named, typed vector of event field values. Exactly one of the
// backing slices is non-nil, selected by the kind. Timestamps are not columns;
// event tables carry a dedicated time axis.
type Column struct {
	name    string
	kind    Kind
	floats  []float64
	ints    []int64
	strings []string
}

// FloatColumn creates a float64-backed column. The column takes ownership of
// the slice.
func FloatColumn(name string, values []float64) *Column {
	return &Column{name: name, kind: KindFloat, floats: values}
}

// IntColumn creates an int64-backed column. The column takes ownership of the
// slice.
func IntColumn(name string, values []int64) *Column {
	return &Column{name: name, kind: KindInt, ints: values}
}

// StringColumn creates a string-backed column. The column takes ownership of
// the slice.
func StringColumn(name string, values []string) *Column {
	return &Column{name: name, kind: KindString, strings: values}
}

// Name returns the column name.
func (c *Column) Name() string {
	return c.name
}

// Kind returns the column's backing kind.
func (c *Column) Kind() Kind {
	return c.kind
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.kind {
	case KindFloat:
		return len(c.floats)
	case KindInt:
		return len(c.ints)
	default:
		return len(c.strings)
	}
}

// Rename changes the column name in place.
func (c *Column) Rename(name string) {
	c.name = name
}

// Floats returns the backing slice for a float column, nil for other kinds.
func (c *Column) Floats() []float64 {
	return c.floats
}

// Ints returns the backing slice for an int column, nil for other kinds.
func (c *Column) Ints() []int64 {
	return c.ints
}

// Strings returns the backing slice for a string column, nil for other kinds.
func (c *Column) Strings() []string {
	return c.strings
}

// Number returns the value at index i as a float64. The second return is
// false for string columns.
func (c *Column) Number(i int) (float64, bool) {
	switch c.kind {
	case KindFloat:
		return c.floats[i], true
	case KindInt:
		return float64(c.ints[i]), true
	default:
		return 0, false
	}
}

// Value returns the value at index i as float64, int64 or string.
func (c *Column) Value(i int) interface{} {
	switch c.kind {
	case KindFloat:
		return c.floats[i]
	case KindInt:
		return c.ints[i]
	default:
		return c.strings[i]
	}
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{name: c.name, kind: c.kind}
	switch c.kind {
	case KindFloat:
		out.floats = append([]float64(nil), c.floats...)
	case KindInt:
		out.ints = append([]int64(nil), c.ints...)
	default:
		out.strings = append([]string(nil), c.strings...)
	}
	return out
}

// Slice returns a copying sub-column covering indexes [i, j).
func (c *Column) Slice(i, j int) *Column {
	out := &Column{name: c.name, kind: c.kind}
	switch c.kind {
	case KindFloat:
		out.floats = append([]float64(nil), c.floats[i:j]...)
	case KindInt:
		out.ints = append([]int64(nil), c.ints[i:j]...)
	default:
		out.strings = append([]string(nil), c.strings[i:j]...)
	}
	return out
}

// AppendFrom appends the value at index i of src to this column. The kinds
// must match.
func (c *Column) AppendFrom(src *Column, i int) error {
	if c.kind != src.kind {
		return fmt.Errorf("types: append %s value to %s column %q: %w",
			src.kind, c.kind, c.name, ErrKindMismatch)
	}
	switch c.kind {
	case KindFloat:
		c.floats = append(c.floats, src.floats[i])
	case KindInt:
		c.ints = append(c.ints, src.ints[i])
	default:
		c.strings = append(c.strings, src.strings[i])
	}
	return nil
}

// SetFloat overwrites the value at index i of a float column.
func (c *Column) SetFloat(i int, v float64) error {
	if c.kind != KindFloat {
		return fmt.Errorf("types: set float on %s column %q: %w", c.kind, c.name, ErrKindMismatch)
	}
	c.floats[i] = v
	return nil
}

// Equal reports whether two columns have the same name, kind and values.
// Float comparison is exact.
func (c *Column) Equal(other *Column) bool {
	if c.name != other.name || c.kind != other.kind || c.Len() != other.Len() {
		return false
	}
	switch c.kind {
	case KindFloat:
		for i, v := range c.floats {
			if v != other.floats[i] {
				return false
			}
		}
	case KindInt:
		for i, v := range c.ints {
			if v != other.ints[i] {
				return false
			}
		}
	default:
		for i, v := range c.strings {
			if v != other.strings[i] {
				return false
			}
		}
	}
	return true
}
