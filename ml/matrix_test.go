package ml

import (
	"strings"
	"testing"

	"enercast/dataset"
)

func TestTableMatrix(t *testing.T) {
	tbl := dataset.NewTable("features")
	if err := tbl.AddFloats("area", []float64{1.5, 2.5, 3.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tbl.AddInts("floors", []int64{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	X, names, err := TableMatrix(tbl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "area" || names[1] != "floors" {
		t.Fatalf("unexpected column names: %v", names)
	}
	rows, cols := X.Dims()
	if rows != 3 || cols != 2 {
		t.Fatalf("expected 3x2 matrix, got %dx%d", rows, cols)
	}
	if X.At(1, 0) != 2.5 {
		t.Fatalf("expected 2.5 at (1,0), got %v", X.At(1, 0))
	}
	if X.At(2, 1) != 3 {
		t.Fatalf("expected int column widened to 3, got %v", X.At(2, 1))
	}
}

func TestTableMatrixRejectsText(t *testing.T) {
	tbl := dataset.NewTable("features")
	if err := tbl.AddStrings("use", []string{"office", "retail"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := TableMatrix(tbl); err == nil || !strings.Contains(err.Error(), "encode") {
		t.Fatalf("expected encoding error, got %v", err)
	}
}

func TestRowSubset(t *testing.T) {
	tbl := dataset.NewTable("features")
	if err := tbl.AddFloats("x", []float64{10, 20, 30, 40}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	X, _, err := TableMatrix(tbl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := RowSubset(X, []int{3, 1})
	rows, _ := sub.Dims()
	if rows != 2 {
		t.Fatalf("expected 2 rows, got %d", rows)
	}
	if sub.At(0, 0) != 40 || sub.At(1, 0) != 20 {
		t.Fatalf("unexpected subset values: %v, %v", sub.At(0, 0), sub.At(1, 0))
	}
	if RowSubset(X, nil) != nil {
		t.Fatalf("expected nil matrix for empty index set")
	}
}

func TestSubset(t *testing.T) {
	out := Subset([]float64{1, 2, 3, 4}, []int{2, 0})
	if len(out) != 2 || out[0] != 3 || out[1] != 1 {
		t.Fatalf("unexpected subset: %v", out)
	}
}
