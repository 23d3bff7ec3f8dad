package ml

import (
	"math"
	"testing"
)

func TestStratifiedSplitCoversAllRows(t *testing.T) {
	y := make([]float64, 100)
	for i := range y {
		y[i] = float64(i)
	}
	train, val, err := StratifiedSplit(y, 0.8, 10, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(train) != 80 || len(val) != 20 {
		t.Fatalf("expected 80/20 split, got %d/%d", len(train), len(val))
	}
	seen := make(map[int]int)
	for _, i := range train {
		seen[i]++
	}
	for _, i := range val {
		seen[i]++
	}
	if len(seen) != 100 {
		t.Fatalf("expected every row assigned, got %d", len(seen))
	}
	for i, count := range seen {
		if count != 1 {
			t.Fatalf("row %d assigned %d times", i, count)
		}
	}
}

func TestStratifiedSplitBalancesStrata(t *testing.T) {
	y := make([]float64, 100)
	for i := range y {
		if i < 50 {
			y[i] = float64(i)
		} else {
			y[i] = float64(1000 + i)
		}
	}
	train, _, err := StratifiedSplit(y, 0.8, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var low, high int
	for _, i := range train {
		if i < 50 {
			low++
		} else {
			high++
		}
	}
	if low != 40 || high != 40 {
		t.Fatalf("expected 40 train rows per stratum, got %d/%d", low, high)
	}
}

func TestStratifiedSplitDeterminism(t *testing.T) {
	y := make([]float64, 60)
	for i := range y {
		y[i] = float64(i * i % 37)
	}
	train1, val1, err := StratifiedSplit(y, 0.8, 5, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	train2, val2, err := StratifiedSplit(y, 0.8, 5, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(train1) != len(train2) || len(val1) != len(val2) {
		t.Fatalf("same seed produced different sizes")
	}
	for i := range train1 {
		if train1[i] != train2[i] {
			t.Fatalf("same seed produced different train sets")
		}
	}

	train3, _, err := StratifiedSplit(y, 0.8, 5, 43)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	same := len(train3) == len(train1)
	if same {
		for i := range train1 {
			if train1[i] != train3[i] {
				same = false
				break
			}
		}
	}
	if same {
		t.Fatalf("different seeds produced identical train sets")
	}
}

func TestStratifiedSplitConstantTarget(t *testing.T) {
	y := make([]float64, 50)
	for i := range y {
		y[i] = 3.5
	}
	train, val, err := StratifiedSplit(y, 0.8, 10, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(train) != 40 || len(val) != 10 {
		t.Fatalf("expected 40/10 split, got %d/%d", len(train), len(val))
	}
}

func TestStratifiedSplitBadFraction(t *testing.T) {
	y := []float64{1, 2, 3}
	if _, _, err := StratifiedSplit(y, 0, 2, 1); err == nil {
		t.Fatalf("expected error for fraction 0")
	}
	if _, _, err := StratifiedSplit(y, 1.2, 2, 1); err == nil {
		t.Fatalf("expected error for fraction above 1")
	}
}

func TestStratifiedSplitRejectsNaNTarget(t *testing.T) {
	y := []float64{1, math.NaN(), 3}
	if _, _, err := StratifiedSplit(y, 0.8, 2, 1); err == nil {
		t.Fatalf("expected error for NaN target")
	}
}
