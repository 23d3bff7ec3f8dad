package ml

import (
	"math"
	"testing"
)

func TestRMSE(t *testing.T) {
	got, err := RMSE([]float64{0, 0}, []float64{3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := math.Sqrt(12.5)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSummaryPerfectFit(t *testing.T) {
	truth := []float64{1, 2, 3, 4}
	m, err := Summary(truth, truth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.RMSE != 0 || m.MAE != 0 {
		t.Fatalf("expected zero error, got %+v", m)
	}
	if math.Abs(m.R2-1) > 1e-12 {
		t.Fatalf("expected R2 of 1, got %v", m.R2)
	}
}

func TestSummaryLengthMismatch(t *testing.T) {
	if _, err := Summary([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatalf("expected error for length mismatch")
	}
}
