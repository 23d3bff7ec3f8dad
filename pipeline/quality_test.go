package pipeline

import "testing"

func TestQualityReportCounters(t *testing.T) {
	q := NewQualityReport()
	q.RecordRows("train.csv", 1000)
	q.RecordWeatherGaps("train", 12)
	q.RecordUnseen("primary_use", 3)
	q.RecordUnseen("primary_use", 2)
	q.RecordUnseen("site_id", 0)

	c := q.Counters()
	if c["rows_read.train.csv"] != 1000 {
		t.Fatalf("unexpected rows counter: %d", c["rows_read.train.csv"])
	}
	if c["weather_gaps.train"] != 12 {
		t.Fatalf("unexpected gap counter: %d", c["weather_gaps.train"])
	}
	if c["unseen_codes.primary_use"] != 5 {
		t.Fatalf("expected unseen counts to accumulate, got %d", c["unseen_codes.primary_use"])
	}
	if _, ok := c["unseen_codes.site_id"]; ok {
		t.Fatalf("zero unseen count should not be recorded")
	}
}
