// Package repository provides data access for run history.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/craft-console/backend/internal/model"
)

// RunRepository persists run records.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record.
func (r *RunRepository) Create(ctx context.Context, run *model.Run) error {
	query := `
		INSERT INTO runs (id, command, workdir, pid, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Command,
		run.Workdir,
		run.PID,
		run.Status,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// Finish marks a run as ended, recording its final status and exit code.
func (r *RunRepository) Finish(ctx context.Context, id string, status model.RunStatus, exitCode *int) error {
	query := `
		UPDATE runs
		SET status = ?, exit_code = ?, stopped_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, exitCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrRunNotFound
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*model.Run, error) {
	query := `
		SELECT id, command, workdir, pid, status, exit_code, started_at, stopped_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List retrieves the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, command, workdir, pid, status, exit_code, started_at, stopped_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// CountActive returns the number of runs still marked running.
func (r *RunRepository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM runs WHERE status = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, model.RunStatusRunning).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active runs: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	run := &model.Run{}
	var workdir sql.NullString
	var pid sql.NullInt64
	var exitCode sql.NullInt64
	var stoppedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Command,
		&workdir,
		&pid,
		&run.Status,
		&exitCode,
		&run.StartedAt,
		&stoppedAt,
	)
	if err != nil {
		return nil, err
	}

	if workdir.Valid {
		run.Workdir = workdir.String
	}
	if pid.Valid {
		p := int(pid.Int64)
		run.PID = &p
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		run.StoppedAt = &t
	}

	return run, nil
}
