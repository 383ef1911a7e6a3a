package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// GraphRepository persists the per-run parent-child graph as one node row
// per URL: its parent (null for the root) and its path from the root.
type GraphRepository struct {
	db *sqlx.DB
}

// NewGraphRepository creates a graph repository.
func NewGraphRepository(db *sqlx.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

// graphNodeRow is the storage shape of one graph node.
type graphNodeRow struct {
	RunID     string            `db:"run_id"`
	URL       string            `db:"url"`
	ParentURL *string           `db:"parent_url"`
	Path      domain.StringList `db:"path"`
}

// Save replaces a run's graph with the given snapshot. Write-once per run
// with replace semantics: saving again first clears the old rows.
func (r *GraphRepository) Save(ctx context.Context, snapshot *domain.GraphSnapshot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save graph: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, delErr := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE run_id = $1`, snapshot.RunID); delErr != nil {
		return fmt.Errorf("clear graph: %w", delErr)
	}

	query := `
		INSERT INTO graph_nodes (run_id, url, parent_url, path)
		VALUES (:run_id, :url, :parent_url, :path)
	`

	for url, path := range snapshot.PathMap {
		row := graphNodeRow{
			RunID: snapshot.RunID,
			URL:   url,
			Path:  domain.StringList(path),
		}
		if parent, ok := snapshot.ParentMap[url]; ok {
			row.ParentURL = &parent
		}

		if _, execErr := tx.NamedExecContext(ctx, query, &row); execErr != nil {
			return fmt.Errorf("insert graph node %s: %w", url, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit graph: %w", commitErr)
	}

	return nil
}

// GetByRun reconstructs the graph snapshot from the node rows.
func (r *GraphRepository) GetByRun(ctx context.Context, runID, startURL string) (*domain.GraphSnapshot, error) {
	rows := []graphNodeRow{}
	query := `SELECT run_id, url, parent_url, path FROM graph_nodes WHERE run_id = $1 ORDER BY url`

	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrGraphNotFound
	}

	snapshot := &domain.GraphSnapshot{
		RunID:       runID,
		StartURL:    startURL,
		ParentMap:   map[string]string{},
		ChildrenMap: map[string][]string{},
		PathMap:     map[string][]string{},
	}

	maxDepth := 0
	pagesByDepth := map[int]int{}

	for _, row := range rows {
		snapshot.PathMap[row.URL] = row.Path
		if row.ParentURL != nil {
			snapshot.ParentMap[row.URL] = *row.ParentURL
			snapshot.ChildrenMap[*row.ParentURL] = append(snapshot.ChildrenMap[*row.ParentURL], row.URL)
		}

		depth := max(0, len(row.Path)-1)
		pagesByDepth[depth]++
		maxDepth = max(maxDepth, depth)
	}

	snapshot.Statistics = domain.GraphStatistics{
		TotalPages:   len(rows),
		MaxDepth:     maxDepth,
		PagesByDepth: pagesByDepth,
	}

	return snapshot, nil
}

// Parent returns a URL's parent in the run's graph. ok is false when the
// URL has no node or is the root.
func (r *GraphRepository) Parent(ctx context.Context, runID, url string) (parent string, ok bool, err error) {
	var stored *string
	query := `SELECT parent_url FROM graph_nodes WHERE run_id = $1 AND url = $2`

	if getErr := r.db.GetContext(ctx, &stored, query, runID, url); getErr != nil {
		if errors.Is(getErr, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get graph parent: %w", getErr)
	}
	if stored == nil {
		return "", false, nil
	}

	return *stored, true, nil
}
