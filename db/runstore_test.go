package db

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"enercast/ml"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRun(ctx, `{"seed":42}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first run id 1, got %d", id)
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != "running" {
		t.Fatalf("expected running status, got %s", run.Status)
	}
	if run.Config != `{"seed":42}` {
		t.Fatalf("unexpected config: %s", run.Config)
	}
	if run.Metrics != nil {
		t.Fatalf("expected no metrics before finish")
	}

	m := &ml.Metrics{RMSE: 0.25, MAE: 0.2, R2: 0.9}
	if err := s.FinishRun(ctx, id, "completed", m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run, err = s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != "completed" {
		t.Fatalf("expected completed status, got %s", run.Status)
	}
	if run.Metrics == nil || run.Metrics.RMSE != 0.25 || run.Metrics.R2 != 0.9 {
		t.Fatalf("unexpected metrics: %+v", run.Metrics)
	}
	if run.FinishedAt.IsZero() {
		t.Fatalf("expected finish time recorded")
	}
}

func TestStoreFinishRunWithoutMetrics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRun(ctx, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.FinishRun(ctx, id, "failed", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != "failed" || run.Metrics != nil {
		t.Fatalf("expected failed run without metrics, got %s %+v", run.Status, run.Metrics)
	}
}

func TestStoreTrainingHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRun(ctx, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evals := []ml.Evaluation{
		{Round: 25, TrainRMSE: 0.5, ValRMSE: 0.6},
		{Round: 50, TrainRMSE: 0.4, ValRMSE: 0.55},
		{Round: 75, TrainRMSE: 0.3, ValRMSE: math.NaN()},
	}
	for _, ev := range evals {
		if err := s.SaveEvaluation(ctx, id, 0, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := s.TrainingHistory(ctx, id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 evaluations, got %d", len(history))
	}
	if history[0].Round != 25 || history[1].ValRMSE != 0.55 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if !math.IsNaN(history[2].ValRMSE) {
		t.Fatalf("expected NULL validation score restored as NaN, got %v", history[2].ValRMSE)
	}

	other, err := s.TrainingHistory(ctx, id, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no history for fold 1, got %d", len(other))
	}
}

func TestStoreImportanceRanking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRun(ctx, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := []ml.ImportanceEntry{
		{Feature: "square_feet", Gain: 0.7},
		{Feature: "air_temperature", Gain: 0.3},
	}
	if err := s.SaveImportance(ctx, id, 0, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ranking, err := s.ImportanceRanking(ctx, id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranking) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ranking))
	}
	if ranking[0].Feature != "square_feet" || ranking[0].Gain != 0.7 {
		t.Fatalf("unexpected ranking: %+v", ranking)
	}
}

func TestStoreCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRun(ctx, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := map[string]int64{
		"rows_read.train.csv": 1000,
		"weather_gaps.train":  12,
	}
	if err := s.SaveCounters(ctx, id, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := s.Counters(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out["rows_read.train.csv"] != 1000 || out["weather_gaps.train"] != 12 {
		t.Fatalf("unexpected counters: %v", out)
	}
}
