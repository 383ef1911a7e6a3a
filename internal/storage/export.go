package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// exportVersion identifies the export document layout.
const exportVersion = "1.0"

// BuildExport assembles the self-contained document for a run: metadata,
// policy, every record collection, the graph, the change report, and the
// retained source codes keyed by URL.
func (s *PostgresStore) BuildExport(ctx context.Context, runID string) (*domain.ExportDocument, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	pages, err := s.GetPages(ctx, runID)
	if err != nil {
		return nil, err
	}

	validations, err := s.GetLinkValidations(ctx, runID)
	if err != nil {
		return nil, err
	}

	doc := &domain.ExportDocument{
		ExportInfo: domain.ExportInfo{
			RunID:      runID,
			ExportedAt: time.Now().UTC(),
			Version:    exportVersion,
		},
		Run:             *run,
		Policy:          run.Policy,
		Pages:           pages,
		LinkValidations: splitValidations(validations),
		Statistics:      exportStatistics(run, pages, validations),
	}

	graph, graphErr := s.GetGraph(ctx, runID)
	if graphErr != nil && !errors.Is(graphErr, ErrGraphNotFound) {
		return nil, graphErr
	}
	doc.Graph = graph

	report, reportErr := s.GetChangeReport(ctx, runID)
	if reportErr != nil && !errors.Is(reportErr, ErrChangeReportNotFound) {
		return nil, reportErr
	}
	doc.ChangeReport = report

	sources, sourcesErr := s.listSources(ctx, runID)
	if sourcesErr != nil {
		return nil, sourcesErr
	}
	doc.SourceCodes = sources

	return doc, nil
}

// listSources loads every retained source for a run, keyed by URL.
func (s *PostgresStore) listSources(ctx context.Context, runID string) (map[string]string, error) {
	rows := []struct {
		URL  string `db:"url"`
		HTML string `db:"html"`
	}{}

	query := `SELECT url, html FROM page_sources WHERE run_id = $1 ORDER BY url`
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("list page sources: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.URL] = row.HTML
	}

	return out, nil
}

// splitValidations groups validations the way drill-down consumers expect:
// broken (including timeouts) apart from everything else.
func splitValidations(validations []domain.LinkValidation) domain.LinkValidationExport {
	export := domain.LinkValidationExport{
		BrokenLinks: []domain.LinkValidation{},
		ValidLinks:  []domain.LinkValidation{},
		TotalCount:  len(validations),
	}

	for _, validation := range validations {
		if validation.IsBroken() {
			export.BrokenLinks = append(export.BrokenLinks, validation)
		} else {
			export.ValidLinks = append(export.ValidLinks, validation)
		}
	}

	export.BrokenCount = len(export.BrokenLinks)
	export.ValidCount = len(export.ValidLinks)

	return export
}

// exportStatistics recomputes the tallies and breakdowns from the records.
func exportStatistics(run *domain.Run, pages []domain.PageRecord, validations []domain.LinkValidation) domain.ExportStatistics {
	stats := domain.ExportStatistics{
		PagesAnalyzed:       run.PagesAnalyzed,
		LinksFound:          run.LinksFound,
		BrokenLinks:         run.BrokenLinks,
		BlankPages:          run.BlankPages,
		ContentPages:        run.ContentPages,
		TechnicalScore:      run.TechnicalScore,
		PageTypeBreakdown:   map[domain.PageType]int{},
		LinkStatusBreakdown: map[domain.LinkStatus]int{},
	}

	for _, page := range pages {
		stats.PageTypeBreakdown[page.PageType]++
	}
	for _, validation := range validations {
		stats.LinkStatusBreakdown[validation.Status]++
	}

	return stats
}
