package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Experiment is one backtest run's index row. The full report lives on
// disk under the results directory; the database only holds enough to
// list and compare runs.
type Experiment struct {
	ID              string    `json:"id"`
	Strategy        string    `json:"strategy"`
	Symbols         string    `json:"symbols"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	InitialCapital  float64   `json:"initial_capital"`
	FinalValue      float64   `json:"final_value"`
	TotalReturn     float64   `json:"total_return"`
	SharpeRatio     float64   `json:"sharpe_ratio"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	TotalTrades     int       `json:"total_trades"`
	ValidationGrade string    `json:"validation_grade"`
	ValidationScore float64   `json:"validation_score"`
	ReportPath      string    `json:"report_path"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExperimentStore indexes completed backtest runs.
type ExperimentStore interface {
	SaveExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context, limit int) ([]Experiment, error)
	Close() error
}

var _ ExperimentStore = (*SQLiteStore)(nil)

// SQLiteStore implements ExperimentStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const createExperimentsTable = `
CREATE TABLE IF NOT EXISTS experiments (
	id               TEXT PRIMARY KEY,
	strategy         TEXT NOT NULL,
	symbols          TEXT NOT NULL,
	start_date       TEXT NOT NULL,
	end_date         TEXT NOT NULL,
	initial_capital  REAL NOT NULL,
	final_value      REAL NOT NULL,
	total_return     REAL NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	max_drawdown     REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	validation_grade TEXT NOT NULL,
	validation_score REAL NOT NULL,
	report_path      TEXT NOT NULL,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_experiments_strategy ON experiments(strategy);
CREATE INDEX IF NOT EXISTS idx_experiments_created ON experiments(created_at);`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// ensures the experiments schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", dbPath, err)
	}
	if _, err := db.Exec(createExperimentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create experiments schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveExperiment inserts or replaces an experiment row.
func (s *SQLiteStore) SaveExperiment(ctx context.Context, exp *Experiment) error {
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO experiments (
			id, strategy, symbols, start_date, end_date,
			initial_capital, final_value, total_return, sharpe_ratio,
			max_drawdown, total_trades, validation_grade, validation_score,
			report_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Strategy, exp.Symbols,
		exp.StartDate.Format(time.RFC3339), exp.EndDate.Format(time.RFC3339),
		exp.InitialCapital, exp.FinalValue, exp.TotalReturn, exp.SharpeRatio,
		exp.MaxDrawdown, exp.TotalTrades, exp.ValidationGrade, exp.ValidationScore,
		exp.ReportPath, exp.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save experiment %s: %w", exp.ID, err)
	}
	return nil
}

// GetExperiment retrieves a single experiment by ID.
func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbols, start_date, end_date,
		       initial_capital, final_value, total_return, sharpe_ratio,
		       max_drawdown, total_trades, validation_grade, validation_score,
		       report_path, created_at
		FROM experiments WHERE id = ?`, id)

	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("experiment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment %s: %w", id, err)
	}
	return exp, nil
}

// ListExperiments returns the most recent experiments, newest first.
func (s *SQLiteStore) ListExperiments(ctx context.Context, limit int) ([]Experiment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbols, start_date, end_date,
		       initial_capital, final_value, total_return, sharpe_ratio,
		       max_drawdown, total_trades, validation_grade, validation_score,
		       report_path, created_at
		FROM experiments ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment row: %w", err)
		}
		out = append(out, *exp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(r rowScanner) (*Experiment, error) {
	var exp Experiment
	var start, end, created string
	if err := r.Scan(
		&exp.ID, &exp.Strategy, &exp.Symbols, &start, &end,
		&exp.InitialCapital, &exp.FinalValue, &exp.TotalReturn, &exp.SharpeRatio,
		&exp.MaxDrawdown, &exp.TotalTrades, &exp.ValidationGrade, &exp.ValidationScore,
		&exp.ReportPath, &created,
	); err != nil {
		return nil, err
	}

	var err error
	if exp.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
		return nil, fmt.Errorf("parse start_date %q: %w", start, err)
	}
	if exp.EndDate, err = time.Parse(time.RFC3339, end); err != nil {
		return nil, fmt.Errorf("parse end_date %q: %w", end, err)
	}
	if exp.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return &exp, nil
}
