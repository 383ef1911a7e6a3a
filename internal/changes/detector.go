// Package changes diffs the page set of a run against the most recent prior
// run for the same start URL. Output ordering is deterministic: every set is
// sorted by URL, and change events within a page follow a fixed order, so
// detecting twice over the same inputs yields identical reports.
package changes

import (
	"slices"
	"time"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// Impact thresholds as fractions of the current run's page count.
const (
	highImpactRatio   = 0.20
	mediumImpactRatio = 0.10
)

// NoPrevious builds the sentinel report for a run with nothing to compare
// against.
func NoPrevious(currentRunID string) *domain.ChangeReport {
	return &domain.ChangeReport{
		Status:       domain.ChangeReportNoPreviousData,
		CurrentRunID: currentRunID,
		DetectedAt:   time.Now().UTC(),
	}
}

// Detect compares the current run's pages against the previous run's.
func Detect(currentRunID, previousRunID string, current, previous []domain.PageRecord) *domain.ChangeReport {
	report := &domain.ChangeReport{
		CurrentRunID:  currentRunID,
		PreviousRunID: previousRunID,
		DetectedAt:    time.Now().UTC(),
	}

	currentByURL := indexByURL(current)
	previousByURL := indexByURL(previous)

	for _, url := range sortedKeys(currentByURL) {
		page := currentByURL[url]
		before, existed := previousByURL[url]
		if !existed {
			report.NewPages = append(report.NewPages, domain.NewPage{
				URL:          url,
				Title:        page.Title,
				WordCount:    page.WordCount,
				Path:         page.Path,
				DiscoveredAt: page.FetchedAt,
			})
			continue
		}

		events := diffPage(before, page)
		if len(events) > 0 {
			report.ModifiedPages = append(report.ModifiedPages, domain.ModifiedPage{
				URL:     url,
				Changes: events,
			})
		}

		if !slices.Equal([]string(before.Path), []string(page.Path)) {
			report.PathChanges = append(report.PathChanges, domain.PathChange{
				URL:        url,
				OldPath:    before.Path,
				NewPath:    page.Path,
				DepthDelta: page.Depth() - before.Depth(),
			})
		}
	}

	for _, url := range sortedKeys(previousByURL) {
		if _, stillThere := currentByURL[url]; stillThere {
			continue
		}
		before := previousByURL[url]
		report.RemovedPages = append(report.RemovedPages, domain.RemovedPage{
			URL:        url,
			Title:      before.Title,
			LastSeenAt: before.FetchedAt,
		})
	}

	report.Summary = summarize(report, len(current))

	return report
}

// diffPage emits the typed change events for one URL present in both runs.
// Event order is fixed: title, word count, page type, structure, path.
func diffPage(before, after *domain.PageRecord) []domain.ChangeEvent {
	var events []domain.ChangeEvent

	if before.Title != after.Title {
		events = append(events, domain.ChangeEvent{
			Type: domain.ChangeTitle,
			Old:  before.Title,
			New:  after.Title,
		})
	}

	if before.WordCount != after.WordCount {
		events = append(events, domain.ChangeEvent{
			Type:  domain.ChangeWordCount,
			Old:   before.WordCount,
			New:   after.WordCount,
			Delta: after.WordCount - before.WordCount,
		})
	}

	if before.PageType != after.PageType {
		events = append(events, domain.ChangeEvent{
			Type: domain.ChangePageType,
			Old:  string(before.PageType),
			New:  string(after.PageType),
		})
	}

	if !before.Structure.Equal(&after.Structure) {
		events = append(events, domain.ChangeEvent{Type: domain.ChangeStructure})
	}

	if !slices.Equal([]string(before.Path), []string(after.Path)) {
		events = append(events, domain.ChangeEvent{
			Type: domain.ChangePath,
			Old:  []string(before.Path),
			New:  []string(after.Path),
		})
	}

	return events
}

// summarize tallies the report and grades its impact against the size of
// the current run.
func summarize(report *domain.ChangeReport, currentPages int) domain.ChangeSummary {
	summary := domain.ChangeSummary{
		NewCount:        len(report.NewPages),
		RemovedCount:    len(report.RemovedPages),
		ModifiedCount:   len(report.ModifiedPages),
		PathChangeCount: len(report.PathChanges),
	}
	summary.TotalChanges = summary.NewCount + summary.RemovedCount + summary.ModifiedCount

	pages := max(1, currentPages)
	ratio := float64(summary.TotalChanges) / float64(pages)

	switch {
	case ratio > highImpactRatio:
		summary.Impact = domain.ImpactHigh
	case ratio > mediumImpactRatio:
		summary.Impact = domain.ImpactMedium
	default:
		summary.Impact = domain.ImpactLow
	}

	return summary
}

func indexByURL(pages []domain.PageRecord) map[string]*domain.PageRecord {
	out := make(map[string]*domain.PageRecord, len(pages))
	for i := range pages {
		out[pages[i].URL] = &pages[i]
	}
	return out
}

func sortedKeys(pages map[string]*domain.PageRecord) []string {
	keys := make([]string, 0, len(pages))
	for url := range pages {
		keys = append(keys, url)
	}
	slices.Sort(keys)
	return keys
}
