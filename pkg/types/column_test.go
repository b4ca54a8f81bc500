package types

import (
	"errors"
	"testing"
)

func TestColumn_Kinds(t *testing.T) {
	f := FloatColumn("util", []float64{1.5, 2.5})
	i := IntColumn("cpu", []int64{0, 1, 2})
	s := StringColumn("comm", []string{"init"})

	if f.Kind() != KindFloat || i.Kind() != KindInt || s.Kind() != KindString {
		t.Error("constructor did not set the expected kind")
	}
	if f.Len() != 2 || i.Len() != 3 || s.Len() != 1 {
		t.Errorf("unexpected lengths: %d %d %d", f.Len(), i.Len(), s.Len())
	}

	// Accessors for the wrong kind return nil
	if f.Ints() != nil || f.Strings() != nil {
		t.Error("expected nil cross-kind accessors on float column")
	}
}

func TestColumn_Number(t *testing.T) {
	i := IntColumn("freq", []int64{1200000})
	v, ok := i.Number(0)
	if !ok || v != 1200000 {
		t.Errorf("expected 1200000 from int column, got %v ok=%v", v, ok)
	}

	s := StringColumn("comm", []string{"swapper"})
	if _, ok := s.Number(0); ok {
		t.Error("expected no numeric view of a string column")
	}
}

func TestColumn_CloneIndependence(t *testing.T) {
	orig := FloatColumn("load", []float64{10, 20})
	clone := orig.Clone()

	if err := clone.SetFloat(0, 99); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}
	if orig.Floats()[0] != 10 {
		t.Error("clone shares backing storage with the original")
	}
}

func TestColumn_SliceCopies(t *testing.T) {
	orig := IntColumn("pid", []int64{1, 2, 3, 4})
	sub := orig.Slice(1, 3)

	if sub.Len() != 2 || sub.Ints()[0] != 2 || sub.Ints()[1] != 3 {
		t.Errorf("unexpected slice contents: %v", sub.Ints())
	}

	sub.Ints()[0] = 42
	if orig.Ints()[1] != 2 {
		t.Error("slice shares backing storage with the original")
	}
}

func TestColumn_AppendFrom(t *testing.T) {
	dst := StringColumn("comm", nil)
	src := StringColumn("comm", []string{"bash", "sshd"})

	if err := dst.AppendFrom(src, 1); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if dst.Len() != 1 || dst.Strings()[0] != "sshd" {
		t.Errorf("unexpected contents after append: %v", dst.Strings())
	}

	bad := IntColumn("pid", []int64{7})
	err := dst.AppendFrom(bad, 0)
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
}

func TestColumn_Equal(t *testing.T) {
	a := FloatColumn("util", []float64{1, 2})
	b := FloatColumn("util", []float64{1, 2})
	c := FloatColumn("util", []float64{1, 3})
	d := FloatColumn("load", []float64{1, 2})

	if !a.Equal(b) {
		t.Error("expected identical columns to be equal")
	}
	if a.Equal(c) {
		t.Error("expected columns with different values to differ")
	}
	if a.Equal(d) {
		t.Error("expected columns with different names to differ")
	}
}

func TestKind_String(t *testing.T) {
	if KindFloat.String() != "float" || KindInt.String() != "int" || KindString.String() != "string" {
		t.Error("unexpected kind names")
	}
}
