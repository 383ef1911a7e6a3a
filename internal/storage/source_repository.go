package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// maxAncestorHops bounds the upward walk when resolving the source of a
// page that stored no HTML of its own.
const maxAncestorHops = 10

// SourceRepository stores raw page HTML. Only pages with children retain
// HTML; leaf pages resolve theirs through the nearest stored ancestor.
type SourceRepository struct {
	db    *sqlx.DB
	graph *GraphRepository
}

// NewSourceRepository creates a source repository.
func NewSourceRepository(db *sqlx.DB, graph *GraphRepository) *SourceRepository {
	return &SourceRepository{db: db, graph: graph}
}

// Save writes one page's HTML.
func (r *SourceRepository) Save(ctx context.Context, source *domain.PageSource) error {
	query := `
		INSERT INTO page_sources (run_id, url, html, parent_url, saved_at)
		VALUES (:run_id, :url, :html, :parent_url, :saved_at)
		ON CONFLICT (run_id, url) DO UPDATE
		SET html = EXCLUDED.html, parent_url = EXCLUDED.parent_url, saved_at = EXCLUDED.saved_at
	`

	if _, err := r.db.NamedExecContext(ctx, query, source); err != nil {
		return fmt.Errorf("save page source: %w", err)
	}

	return nil
}

// BulkInsert writes several page sources in one transaction.
func (r *SourceRepository) BulkInsert(ctx context.Context, sources []domain.PageSource) error {
	if len(sources) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert page sources: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO page_sources (run_id, url, html, parent_url, saved_at)
		VALUES (:run_id, :url, :html, :parent_url, :saved_at)
		ON CONFLICT (run_id, url) DO NOTHING
	`

	for i := range sources {
		if _, execErr := tx.NamedExecContext(ctx, query, &sources[i]); execErr != nil {
			return fmt.Errorf("insert page source %s: %w", sources[i].URL, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit page sources: %w", commitErr)
	}

	return nil
}

// get reads the raw HTML stored for exactly (run, URL).
func (r *SourceRepository) get(ctx context.Context, runID, url string) (string, bool, error) {
	var html string
	query := `SELECT html FROM page_sources WHERE run_id = $1 AND url = $2`

	if err := r.db.GetContext(ctx, &html, query, runID, url); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get page source: %w", err)
	}

	return html, true, nil
}

// Resolve returns the HTML for a URL, walking up the parent graph when the
// URL itself stored none. The lookup records the traversal: which ancestor
// actually held the HTML and how many hops it took. ErrSourceNotFound after
// the hop limit.
func (r *SourceRepository) Resolve(ctx context.Context, runID, url string) (*domain.SourceLookup, error) {
	lookup := &domain.SourceLookup{
		RequestedURL:  url,
		TraversalPath: []string{url},
	}

	current := url
	for hop := 0; hop <= maxAncestorHops; hop++ {
		html, found, err := r.get(ctx, runID, current)
		if err != nil {
			return nil, err
		}
		if found {
			lookup.ActualSourcePage = current
			lookup.HTML = html
			lookup.HierarchyDepth = hop
			return lookup, nil
		}

		parent, ok, parentErr := r.graph.Parent(ctx, runID, current)
		if parentErr != nil {
			return nil, parentErr
		}
		if !ok {
			break
		}

		current = parent
		lookup.TraversalPath = append(lookup.TraversalPath, current)
	}

	return nil, fmt.Errorf("%w: %s (walked %d ancestors)", ErrSourceNotFound, url, len(lookup.TraversalPath)-1)
}
