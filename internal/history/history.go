// Package history records finished pipeline runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/pressly/goose/v3"

	"github.com/stevehiehn/piperun/internal/engine"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by GetRun for an unknown run id.
var ErrNotFound = errors.New("run not found")

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	RunID          string    `json:"run_id"`
	Pipeline       string    `json:"pipeline"`
	Mode           string    `json:"mode"`
	Status         string    `json:"status"`
	FailedStep     string    `json:"failed_step,omitempty"`
	FailedPosition int       `json:"failed_position,omitempty"`
	Cause          string    `json:"cause,omitempty"`
	Output         string    `json:"output,omitempty"`
	StartedOn      time.Time `json:"started_on"`
	EndedOn        time.Time `json:"ended_on"`
}

// Step is one step of a recorded run.
type Step struct {
	RunID      string `json:"-"`
	Position   int    `json:"position"`
	StepID     string `json:"step_id"`
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms" db:"duration_ms"`
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations. ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring history database: %w", err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrating history database: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished run and its steps.
func (s *Store) Record(ctx context.Context, res *engine.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := StatusSucceeded
	var cause string
	if !res.Success {
		status = StatusFailed
		if f := res.Failure(); f != nil {
			cause = f.Message
		}
	}

	query := `insert into runs (
		run_id,
		pipeline,
		mode,
		status,
		failed_step,
		failed_position,
		cause,
		output,
		started_on,
		ended_on
	)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, query,
		res.RunID,
		res.Pipeline,
		res.Mode,
		status,
		res.FailedStepID,
		res.FailedPosition,
		cause,
		res.Output,
		res.StartedAt.UTC(),
		res.EndedAt.UTC(),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", res.RunID, err)
	}

	stepQuery := `insert into run_steps (
		run_id,
		position,
		step_id,
		status,
		exit_code,
		duration_ms
	)
	values ($1, $2, $3, $4, $5, $6)`
	for _, st := range res.Steps {
		if _, err := tx.ExecContext(ctx, stepQuery,
			res.RunID, st.Position, st.ID, st.Status, st.ExitCode, st.DurationMS,
		); err != nil {
			return fmt.Errorf("inserting step %s: %w", st.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `select * from runs
	order by started_on desc limit $1`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, s.db, &runs, query, limit)
	return runs, err
}

// GetRun returns one run with its steps in position order.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, []Step, error) {
	r := &Run{}
	if err := sqlscan.Get(ctx, s.db, r, "select * from runs where run_id = $1", runID); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, nil, err
	}
	steps := make([]Step, 0)
	query := `select * from run_steps
	where run_id = $1
	order by position`
	if err := sqlscan.Select(ctx, s.db, &steps, query, runID); err != nil {
		return nil, nil, err
	}
	return r, steps, nil
}
