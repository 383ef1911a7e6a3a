package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// PageRepository handles database operations for page records.
type PageRepository struct {
	db *sqlx.DB
}

// NewPageRepository creates a page repository.
func NewPageRepository(db *sqlx.DB) *PageRepository {
	return &PageRepository{db: db}
}

const pageColumns = `
	run_id, url, fetched_at, status_code, response_time_ms,
	title, word_count, page_type,
	has_header, has_footer, has_navigation,
	structure, path, parent_url
`

// BulkInsert writes a run's page records in one transaction.
func (r *PageRepository) BulkInsert(ctx context.Context, pages []domain.PageRecord) error {
	if len(pages) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert pages: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO pages (` + pageColumns + `)
		VALUES (
			:run_id, :url, :fetched_at, :status_code, :response_time_ms,
			:title, :word_count, :page_type,
			:has_header, :has_footer, :has_navigation,
			:structure, :path, :parent_url
		)
		ON CONFLICT (run_id, url) DO NOTHING
	`

	for i := range pages {
		if _, execErr := tx.NamedExecContext(ctx, query, &pages[i]); execErr != nil {
			return fmt.Errorf("insert page %s: %w", pages[i].URL, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit pages: %w", commitErr)
	}

	return nil
}

// ListByRun returns a run's pages in fetch order.
func (r *PageRepository) ListByRun(ctx context.Context, runID string) ([]domain.PageRecord, error) {
	pages := []domain.PageRecord{}
	query := `SELECT ` + pageColumns + ` FROM pages WHERE run_id = $1 ORDER BY fetched_at, url`

	if err := r.db.SelectContext(ctx, &pages, query, runID); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	return pages, nil
}

// GetByURL retrieves one page record by (run, URL).
func (r *PageRepository) GetByURL(ctx context.Context, runID, url string) (*domain.PageRecord, error) {
	var page domain.PageRecord
	query := `SELECT ` + pageColumns + ` FROM pages WHERE run_id = $1 AND url = $2`

	if err := r.db.GetContext(ctx, &page, query, runID, url); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("get page: %w", err)
	}

	return &page, nil
}
