package pipeline

import (
	"time"

	"go.uber.org/zap"

	"enercast/db"
	"enercast/ml"
)

// Context is the explicit per-run state handed between stages. Every
// run constructs a fresh one; no state is shared across runs.
type Context struct {
	Cfg     *Config
	Log     *zap.Logger
	Store   *db.Store // nil when the run store is disabled
	RunID   int64
	Quality *QualityReport
	Started time.Time

	// FinalMetrics holds the fold-averaged validation summary once
	// training finishes.
	FinalMetrics *ml.Metrics
}

// NewContext builds run state around validated config.
func NewContext(cfg *Config, log *zap.Logger, store *db.Store) *Context {
	return &Context{
		Cfg:     cfg,
		Log:     log,
		Store:   store,
		Quality: NewQualityReport(),
		Started: time.Now(),
	}
}
