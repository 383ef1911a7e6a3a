package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// RunRepository handles database operations for runs.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, application_id, start_url, status, policy,
	created_at, started_at, completed_at,
	pages_analyzed, links_found, broken_links, blank_pages, content_pages,
	technical_score, task_id, error_message, stack_trace
`

// Create inserts a new run row.
func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (
			:id, :application_id, :start_url, :status, :policy,
			:created_at, :started_at, :completed_at,
			:pages_analyzed, :links_found, :broken_links, :blank_pages, :content_pages,
			:technical_score, :task_id, :error_message, :stack_trace
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	return nil
}

// Update rewrites every mutable field of a run row.
func (r *RunRepository) Update(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET status = :status,
		    started_at = :started_at,
		    completed_at = :completed_at,
		    pages_analyzed = :pages_analyzed,
		    links_found = :links_found,
		    broken_links = :broken_links,
		    blank_pages = :blank_pages,
		    content_pages = :content_pages,
		    technical_score = :technical_score,
		    task_id = :task_id,
		    error_message = :error_message,
		    stack_trace = :stack_trace
		WHERE id = :id
	`

	result, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	return execRequireRows(result, nil, ErrRunNotFound)
}

// GetByID retrieves a run by its id.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	var run domain.Run
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	return &run, nil
}

// ListParams filters and bounds a run listing.
type ListParams struct {
	ApplicationID string
	StartURL      string
	Status        domain.RunStatus
	Limit         int
	Offset        int
}

// List returns runs newest first, optionally filtered.
func (r *RunRepository) List(ctx context.Context, params ListParams) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}

	if params.ApplicationID != "" {
		args = append(args, params.ApplicationID)
		query += fmt.Sprintf(" AND application_id = $%d", len(args))
	}
	if params.StartURL != "" {
		args = append(args, params.StartURL)
		query += fmt.Sprintf(" AND start_url = $%d", len(args))
	}
	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	runs := []*domain.Run{}
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, nil
}

// Delete removes a run; per-run records cascade with it.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	return execRequireRows(result, nil, ErrRunNotFound)
}

// PreviousCompleted finds the most recent completed run for the same start
// URL that was created before the given run. ErrNoPreviousRun when none.
func (r *RunRepository) PreviousCompleted(ctx context.Context, startURL string, before time.Time, excludeID string) (*domain.Run, error) {
	var run domain.Run
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE start_url = $1
		  AND status = $2
		  AND created_at < $3
		  AND id <> $4
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &run, query, startURL, domain.RunStatusCompleted, before, excludeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPreviousRun
		}
		return nil, fmt.Errorf("find previous run: %w", err)
	}

	return &run, nil
}

// DeleteOlderThan removes terminal runs created before the cutoff and
// returns how many were deleted. Used by the retention sweeper.
func (r *RunRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM runs WHERE created_at < $1 AND status IN ($2, $3)`,
		cutoff, domain.RunStatusCompleted, domain.RunStatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(deleted), nil
}
