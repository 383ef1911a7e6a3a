package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// LinkRepository handles database operations for link validations.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a link repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

const linkColumns = `
	run_id, url, status_code, status, response_time_ms,
	title, error_message, checked_at
`

// BulkInsert writes a run's link validations in one transaction. Conflicting
// URLs keep their first record; the crawl's own validation wins over a
// later re-check.
func (r *LinkRepository) BulkInsert(ctx context.Context, validations []domain.LinkValidation) error {
	if len(validations) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert link validations: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO link_validations (` + linkColumns + `)
		VALUES (
			:run_id, :url, :status_code, :status, :response_time_ms,
			:title, :error_message, :checked_at
		)
		ON CONFLICT (run_id, url) DO NOTHING
	`

	for i := range validations {
		if _, execErr := tx.NamedExecContext(ctx, query, &validations[i]); execErr != nil {
			return fmt.Errorf("insert link validation %s: %w", validations[i].URL, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit link validations: %w", commitErr)
	}

	return nil
}

// ListByRun returns a run's link validations ordered by URL.
func (r *LinkRepository) ListByRun(ctx context.Context, runID string) ([]domain.LinkValidation, error) {
	validations := []domain.LinkValidation{}
	query := `SELECT ` + linkColumns + ` FROM link_validations WHERE run_id = $1 ORDER BY url`

	if err := r.db.SelectContext(ctx, &validations, query, runID); err != nil {
		return nil, fmt.Errorf("list link validations: %w", err)
	}

	return validations, nil
}

// ListBrokenDetails returns broken and timed-out links joined with the page
// graph, so drill-down views can show where each broken link lives.
func (r *LinkRepository) ListBrokenDetails(ctx context.Context, runID string) ([]domain.BrokenLinkDetail, error) {
	validations := []domain.LinkValidation{}
	query := `
		SELECT ` + linkColumns + `
		FROM link_validations
		WHERE run_id = $1 AND status IN ($2, $3)
		ORDER BY url
	`

	err := r.db.SelectContext(ctx, &validations, query, runID,
		domain.LinkStatusBroken, domain.LinkStatusTimeout)
	if err != nil {
		return nil, fmt.Errorf("list broken links: %w", err)
	}

	details := make([]domain.BrokenLinkDetail, 0, len(validations))
	for _, validation := range validations {
		detail := domain.BrokenLinkDetail{Validation: validation}

		var node graphNodeRow
		nodeQuery := `SELECT run_id, url, parent_url, path FROM graph_nodes WHERE run_id = $1 AND url = $2`
		if nodeErr := r.db.GetContext(ctx, &node, nodeQuery, runID, validation.URL); nodeErr == nil {
			if node.ParentURL != nil {
				detail.SourceURL = *node.ParentURL
			}
			detail.SourcePath = node.Path
		}

		details = append(details, detail)
	}

	return details, nil
}
