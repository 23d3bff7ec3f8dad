package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"enercast/ml"
)

// Store records pipeline runs in SQLite: one row per run plus the
// per-round evaluation history, final feature importance and data
// quality counters of each fold.
type Store struct {
	db *sql.DB

	stmts    map[string]*sql.Stmt
	stmtLock sync.RWMutex
}

// Run is a stored pipeline run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Config     string
	Metrics    *ml.Metrics
}

// Open opens or creates the run database at path. WAL mode keeps
// writes from blocking history queries against the same file.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_cache_size=10000&_synchronous=NORMAL"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{db: conn, stmts: make(map[string]*sql.Stmt)}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            started_at INTEGER NOT NULL,
            finished_at INTEGER,
            status TEXT NOT NULL,
            config TEXT,
            val_rmse REAL,
            val_mae REAL,
            val_r2 REAL
        )`,
		`CREATE TABLE IF NOT EXISTS evaluations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id INTEGER NOT NULL,
            fold INTEGER NOT NULL,
            round INTEGER NOT NULL,
            train_rmse REAL NOT NULL,
            val_rmse REAL,
            created_at INTEGER DEFAULT (strftime('%s', 'now'))
        )`,
		`CREATE TABLE IF NOT EXISTS importance (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id INTEGER NOT NULL,
            fold INTEGER NOT NULL,
            position INTEGER NOT NULL,
            feature TEXT NOT NULL,
            gain REAL NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS counters (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            value INTEGER NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_run ON evaluations(run_id, fold, round)`,
		`CREATE INDEX IF NOT EXISTS idx_importance_run ON importance(run_id, fold, position)`,
		`CREATE INDEX IF NOT EXISTS idx_counters_run ON counters(run_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun inserts a new run in the running state and returns its id.
func (s *Store) CreateRun(ctx context.Context, config string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, status, config) VALUES (?, 'running', ?)`,
		time.Now().Unix(), config)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run completed or failed. Metrics may be nil when
// the run failed before any fold finished.
func (s *Store) FinishRun(ctx context.Context, id int64, status string, m *ml.Metrics) error {
	var rmse, mae, r2 interface{}
	if m != nil {
		rmse, mae, r2 = m.RMSE, m.MAE, m.R2
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, val_rmse = ?, val_mae = ?, val_r2 = ? WHERE id = ?`,
		time.Now().Unix(), status, rmse, mae, r2, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// SaveEvaluation appends one round of the training history.
func (s *Store) SaveEvaluation(ctx context.Context, runID int64, fold int, ev ml.Evaluation) error {
	stmt, err := s.prepared(`INSERT INTO evaluations (run_id, fold, round, train_rmse, val_rmse)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	// No validation rows yields a NaN score, stored as NULL.
	var val interface{}
	if !math.IsNaN(ev.ValRMSE) {
		val = ev.ValRMSE
	}
	if _, err := stmt.ExecContext(ctx, runID, fold, ev.Round, ev.TrainRMSE, val); err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	return nil
}

// SaveImportance stores a fold's gain ranking, best feature first.
func (s *Store) SaveImportance(ctx context.Context, runID int64, fold int, entries []ml.ImportanceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := s.prepared(`INSERT INTO importance (run_id, fold, position, feature, gain)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, entry := range entries {
		if _, err := tx.Stmt(stmt).ExecContext(ctx, runID, fold, i+1, entry.Feature, entry.Gain); err != nil {
			return fmt.Errorf("save importance: %w", err)
		}
	}
	return tx.Commit()
}

// SaveCounters stores the run's data quality counters.
func (s *Store) SaveCounters(ctx context.Context, runID int64, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	stmt, err := s.prepared(`INSERT INTO counters (run_id, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, name := range names {
		if _, err := tx.Stmt(stmt).ExecContext(ctx, runID, name, counters[name]); err != nil {
			return fmt.Errorf("save counters: %w", err)
		}
	}
	return tx.Commit()
}

// GetRun loads one stored run.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
		config   sql.NullString
		rmse     sql.NullFloat64
		mae      sql.NullFloat64
		r2       sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, config, val_rmse, val_mae, val_r2
        FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &started, &finished, &run.Status, &config, &rmse, &mae, &r2)
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	run.StartedAt = time.Unix(started, 0)
	if finished.Valid {
		run.FinishedAt = time.Unix(finished.Int64, 0)
	}
	if config.Valid {
		run.Config = config.String
	}
	if rmse.Valid {
		run.Metrics = &ml.Metrics{RMSE: rmse.Float64, MAE: mae.Float64, R2: r2.Float64}
	}
	return &run, nil
}

// TrainingHistory returns a fold's evaluation rounds in order.
func (s *Store) TrainingHistory(ctx context.Context, runID int64, fold int) ([]ml.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT round, train_rmse, val_rmse FROM evaluations
        WHERE run_id = ? AND fold = ? ORDER BY round`, runID, fold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []ml.Evaluation
	for rows.Next() {
		var (
			ev  ml.Evaluation
			val sql.NullFloat64
		)
		if err := rows.Scan(&ev.Round, &ev.TrainRMSE, &val); err != nil {
			return nil, err
		}
		ev.ValRMSE = math.NaN()
		if val.Valid {
			ev.ValRMSE = val.Float64
		}
		history = append(history, ev)
	}
	return history, rows.Err()
}

// Counters returns a run's stored quality counters.
func (s *Store) Counters(ctx context.Context, runID int64) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM counters WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// ImportanceRanking returns a fold's stored gain ranking.
func (s *Store) ImportanceRanking(ctx context.Context, runID int64, fold int) ([]ml.ImportanceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature, gain FROM importance
        WHERE run_id = ? AND fold = ? ORDER BY position`, runID, fold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ml.ImportanceEntry
	for rows.Next() {
		var entry ml.ImportanceEntry
		if err := rows.Scan(&entry.Feature, &entry.Gain); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) prepared(query string) (*sql.Stmt, error) {
	s.stmtLock.RLock()
	stmt, ok := s.stmts[query]
	s.stmtLock.RUnlock()
	if ok {
		return stmt, nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmtLock.Lock()
	s.stmts[query] = stmt
	s.stmtLock.Unlock()
	return stmt, nil
}

// Close closes the prepared statements and the database.
func (s *Store) Close() error {
	s.stmtLock.Lock()
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = nil
	s.stmtLock.Unlock()
	return s.db.Close()
}
