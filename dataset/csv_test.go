package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestReadCSVTypedColumns(t *testing.T) {
	content := "\xef\xbb\xbf" +
		"building_id,timestamp,meter_reading,primary_use\n" +
		"1,2016-01-01 00:00:00,12.5,Education\n" +
		"2,2016-01-01 01:00:00,,\"Office, Shared\"\n"
	path := writeTemp(t, "train.csv", content)

	tb, err := ReadCSV(path, ReadOptions{
		IntCols:    []string{"building_id"},
		TimeCols:   []string{"timestamp"},
		StringCols: []string{"primary_use"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tb.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", tb.NumRows())
	}

	ids, err := tb.Ints("building_id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("bom not stripped or int parse wrong: %v", ids)
	}

	ts, err := tb.Ints("timestamp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	if ts[0] != want {
		t.Fatalf("expected %d, got %d", want, ts[0])
	}
	if ts[1] != want+3600 {
		t.Fatalf("expected %d, got %d", want+3600, ts[1])
	}

	readings, err := tb.Floats("meter_reading")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readings[0] != 12.5 {
		t.Fatalf("expected 12.5, got %v", readings[0])
	}
	if !math.IsNaN(readings[1]) {
		t.Fatalf("expected NaN for empty value, got %v", readings[1])
	}

	uses, err := tb.Strings("primary_use")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uses[1] != "Office, Shared" {
		t.Fatalf("quoted field mangled: %q", uses[1])
	}
}

func TestReadCSVMaxRows(t *testing.T) {
	content := "site_id,air_temperature\n0,1.0\n0,2.0\n0,3.0\n"
	path := writeTemp(t, "weather.csv", content)

	tb, err := ReadCSV(path, ReadOptions{IntCols: []string{"site_id"}, MaxRows: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tb.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", tb.NumRows())
	}
}

func TestReadCSVMissingDeclaredColumn(t *testing.T) {
	path := writeTemp(t, "meta.csv", "building_id,site_id\n1,0\n")
	_, err := ReadCSV(path, ReadOptions{IntCols: []string{"building_id"}, StringCols: []string{"primary_use"}})
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected missing column, got %v", err)
	}
}

func TestReadCSVBadNumeric(t *testing.T) {
	path := writeTemp(t, "train.csv", "meter_reading\nnot-a-number\n")
	if _, err := ReadCSV(path, ReadOptions{}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWriteSubmissionFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submission.csv")
	ids := []int64{0, 1, 2}
	vals := []float64{170.12, 0, 3.5}
	if err := WriteSubmission(path, "row_id", "meter_reading", ids, vals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "row_id,meter_reading\n0,170.12\n1,0.00\n2,3.50\n"
	if string(data) != want {
		t.Fatalf("expected %q, got %q", want, string(data))
	}
}

func TestWriteSubmissionLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submission.csv")
	if err := WriteSubmission(path, "row_id", "meter_reading", []int64{1}, nil); err == nil {
		t.Fatalf("expected length error")
	}
}
