package pipeline

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"enercast/dataset"
)

// MergeTables left-joins building metadata (required, fails loudly on
// an unmatched entity) and site weather (optional, gaps become NaN)
// onto an event table. The event and weather tables are consumed;
// metadata stays intact so the other dataset can reuse it. side
// labels the dataset ("train" or "test") in logs and quality
// counters.
func MergeTables(ctx *Context, events, metadata, weather *dataset.Table, side string) (*dataset.Table, error) {
	f := ctx.Cfg.Features
	merged, _, err := dataset.LeftJoin(events, metadata, []string{f.EntityKey}, true)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", side, err)
	}
	events.Release()
	merged, gaps, err := dataset.LeftJoin(merged, weather, []string{f.SiteKey, f.TimeColumn}, false)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", side, err)
	}
	weather.Release()
	ctx.Quality.RecordWeatherGaps(side, gaps)
	ctx.Log.Info("merged",
		zap.String("dataset", side),
		zap.Int("rows", merged.NumRows()),
		zap.Int("columns", merged.NumCols()),
		zap.Int("weather_gaps", gaps),
	)
	return merged, nil
}

// DeriveFeatures turns a merged table into trainer-ready columns. The
// configured drop list is removed first, calendar features replace
// the timestamp, the year column becomes an offset from 1900 and log
// columns are compressed with log1p. The input table is mutated and
// returned; given the same input the output is identical.
//
// Derived columns: weekday follows Go's convention, 0=Sunday through
// 6=Saturday. hour is 0-23. season is the fiscal quarter of a year
// starting in December: Dec/Jan/Feb=1, Mar/Apr/May=2, Jun/Jul/Aug=3,
// Sep/Oct/Nov=4. The 1900 rebase goes negative for older buildings;
// that is intentional and the trainer is indifferent to it.
func DeriveFeatures(ctx *Context, t *dataset.Table) (*dataset.Table, error) {
	f := ctx.Cfg.Features
	if len(f.DropColumns) > 0 {
		if err := t.Drop(f.DropColumns...); err != nil {
			return nil, fmt.Errorf("derive: %w", err)
		}
	}

	ts, err := t.Ints(f.TimeColumn)
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	n := len(ts)
	weekdays := make([]int64, n)
	hours := make([]int64, n)
	seasons := make([]int64, n)
	for i, unix := range ts {
		tm := time.Unix(unix, 0).UTC()
		weekdays[i] = int64(tm.Weekday())
		hours[i] = int64(tm.Hour())
		seasons[i] = int64(int(tm.Month())%12/3 + 1)
	}
	if err := t.AddInts("weekday", weekdays); err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	if err := t.AddInts("hour", hours); err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	if err := t.AddInts("season", seasons); err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	if err := t.Drop(f.TimeColumn); err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}

	if f.YearColumn != "" {
		years, err := t.Floats(f.YearColumn)
		if err != nil {
			return nil, fmt.Errorf("derive: %w", err)
		}
		for i, v := range years {
			years[i] = v - 1900
		}
	}
	for _, name := range f.LogColumns {
		vals, err := t.Floats(name)
		if err != nil {
			return nil, fmt.Errorf("derive: %w", err)
		}
		for i, v := range vals {
			vals[i] = math.Log1p(v)
		}
	}

	ctx.Log.Info("derived features",
		zap.String("table", t.Name()),
		zap.Int("columns", t.NumCols()),
	)
	return t, nil
}
