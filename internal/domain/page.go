// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// PageType classifies a fetched page.
type PageType string

// Page type constants.
const (
	PageTypeContent  PageType = "content"
	PageTypeBlank    PageType = "blank"
	PageTypeError    PageType = "error"
	PageTypeRedirect PageType = "redirect"
)

// PageRecord represents a single analyzed page within a run. A record exists
// only for URLs whose fetch returned a body with a non-error status; URLs
// that failed to fetch are visible only through their link validation.
type PageRecord struct {
	// Identity
	RunID string `db:"run_id" json:"run_id"`
	URL   string `db:"url"    json:"url"`

	// Fetch outcome
	FetchedAt      time.Time `db:"fetched_at"       json:"fetched_at"`
	StatusCode     int       `db:"status_code"      json:"status_code"`
	ResponseTimeMs int64     `db:"response_time_ms" json:"response_time_ms"`

	// Content
	Title     string   `db:"title"      json:"title"`
	WordCount int      `db:"word_count" json:"word_count"`
	PageType  PageType `db:"page_type"  json:"page_type"`

	// Layout flags
	HasHeader     bool `db:"has_header"     json:"has_header"`
	HasFooter     bool `db:"has_footer"     json:"has_footer"`
	HasNavigation bool `db:"has_navigation" json:"has_navigation"`

	// Structure and lineage
	Structure PageStructure `db:"structure"  json:"structure"`
	Path      StringList    `db:"path"       json:"path"`
	ParentURL *string       `db:"parent_url" json:"parent_url,omitempty"`
}

// Depth returns the page's click depth within the run's parent graph.
func (p *PageRecord) Depth() int {
	if len(p.Path) == 0 {
		return 0
	}
	return len(p.Path) - 1
}

// PageSource is the raw HTML retained for a page. Only pages with at least
// one child in the parent graph store source; leaf pages resolve theirs
// through the nearest stored ancestor.
type PageSource struct {
	RunID     string    `db:"run_id"     json:"run_id"`
	URL       string    `db:"url"        json:"url"`
	HTML      string    `db:"html"       json:"html"`
	ParentURL *string   `db:"parent_url" json:"parent_url,omitempty"`
	SavedAt   time.Time `db:"saved_at"   json:"saved_at"`
}

// SourceLookup is the result of a source-code read, including the ancestor
// traversal that located the HTML when the URL itself stored none.
type SourceLookup struct {
	RequestedURL     string   `json:"requested_url"`
	ActualSourcePage string   `json:"actual_source_page"`
	HTML             string   `json:"html"`
	TraversalPath    []string `json:"traversal_path"`
	HierarchyDepth   int      `json:"hierarchy_depth"`
}
