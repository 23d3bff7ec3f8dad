package dataset

import (
	"errors"
	"testing"
)

func TestTableAddAndAccess(t *testing.T) {
	tb := NewTable("t")
	if err := tb.AddInts("building_id", []int64{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tb.AddFloats("square_feet", []float64{100, 200, 300}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tb.AddStrings("primary_use", []string{"Education", "Office", "Education"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tb.NumRows() != 3 || tb.NumCols() != 3 {
		t.Fatalf("expected 3x3, got %dx%d", tb.NumRows(), tb.NumCols())
	}
	ids, err := tb.Ints("building_id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids[2] != 3 {
		t.Fatalf("expected 3, got %d", ids[2])
	}
	if _, err := tb.Floats("primary_use"); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected kind mismatch, got %v", err)
	}
	if _, err := tb.Floats("no_such"); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected missing column, got %v", err)
	}
}

func TestTableRejectsRaggedColumns(t *testing.T) {
	tb := NewTable("t")
	if err := tb.AddInts("a", []int64{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tb.AddFloats("b", []float64{1}); err == nil {
		t.Fatalf("expected length error")
	}
	if err := tb.AddInts("a", []int64{3, 4}); err == nil {
		t.Fatalf("expected duplicate column error")
	}
}

func TestTableDrop(t *testing.T) {
	tb := NewTable("t")
	tb.AddInts("a", []int64{1})
	tb.AddFloats("b", []float64{2})
	tb.AddStrings("c", []string{"x"})
	if err := tb.Drop("b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tb.HasColumn("b") {
		t.Fatalf("column b should be gone")
	}
	vals, err := tb.Strings("c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vals[0] != "x" {
		t.Fatalf("expected x, got %s", vals[0])
	}
	if err := tb.Drop("b"); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected missing column, got %v", err)
	}
}

func TestTableReplaceFloats(t *testing.T) {
	tb := NewTable("t")
	tb.AddStrings("primary_use", []string{"Education", "Office"})
	tb.AddFloats("x", []float64{1, 2})
	if err := tb.ReplaceFloats("primary_use", []float64{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals, err := tb.Floats("primary_use")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vals[1] != 1 {
		t.Fatalf("expected 1, got %v", vals[1])
	}
	names := tb.ColumnNames()
	if names[0] != "primary_use" {
		t.Fatalf("replace must keep column position, got %v", names)
	}
}

func TestTableRelease(t *testing.T) {
	tb := NewTable("t")
	tb.AddInts("a", []int64{1, 2})
	tb.Release()
	if tb.NumRows() != 0 || tb.NumCols() != 0 {
		t.Fatalf("expected empty table after release")
	}
}
