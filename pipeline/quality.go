package pipeline

import "go.uber.org/zap"

// QualityReport counts tolerated data issues and input volumes for
// one run. Weather gaps and unseen category values are soft errors:
// logged and persisted, never fatal.
type QualityReport struct {
	RowsRead    map[string]int
	WeatherGaps map[string]int
	UnseenCodes map[string]int
}

func NewQualityReport() *QualityReport {
	return &QualityReport{
		RowsRead:    make(map[string]int),
		WeatherGaps: make(map[string]int),
		UnseenCodes: make(map[string]int),
	}
}

func (q *QualityReport) RecordRows(source string, rows int) {
	q.RowsRead[source] = rows
}

func (q *QualityReport) RecordWeatherGaps(side string, rows int) {
	q.WeatherGaps[side] = rows
}

func (q *QualityReport) RecordUnseen(column string, rows int) {
	if rows > 0 {
		q.UnseenCodes[column] += rows
	}
}

// Counters flattens the report for the run store.
func (q *QualityReport) Counters() map[string]int64 {
	out := make(map[string]int64, len(q.RowsRead)+len(q.WeatherGaps)+len(q.UnseenCodes))
	for k, v := range q.RowsRead {
		out["rows_read."+k] = int64(v)
	}
	for k, v := range q.WeatherGaps {
		out["weather_gaps."+k] = int64(v)
	}
	for k, v := range q.UnseenCodes {
		out["unseen_codes."+k] = int64(v)
	}
	return out
}

// Log writes a run summary through the run logger.
func (q *QualityReport) Log(log *zap.Logger) {
	log.Info("data quality",
		zap.Any("rows_read", q.RowsRead),
		zap.Any("weather_gaps", q.WeatherGaps),
		zap.Any("unseen_codes", q.UnseenCodes),
	)
}
