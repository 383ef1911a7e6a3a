package domain

import (
	"time"
)

// ExportInfo describes when and for which run an export was produced.
type ExportInfo struct {
	RunID      string    `json:"run_id"`
	ExportedAt time.Time `json:"exported_at"`
	Version    string    `json:"version"`
}

// LinkValidationExport splits validations into broken and valid groups, the
// shape drill-down consumers expect.
type LinkValidationExport struct {
	BrokenLinks []LinkValidation `json:"broken_links"`
	ValidLinks  []LinkValidation `json:"valid_links"`
	BrokenCount int              `json:"broken_count"`
	ValidCount  int              `json:"valid_count"`
	TotalCount  int              `json:"total_count"`
}

// ExportStatistics carries the aggregate tallies and breakdowns of a run.
type ExportStatistics struct {
	PagesAnalyzed       int                `json:"pages_analyzed"`
	LinksFound          int                `json:"links_found"`
	BrokenLinks         int                `json:"broken_links"`
	BlankPages          int                `json:"blank_pages"`
	ContentPages        int                `json:"content_pages"`
	TechnicalScore      int                `json:"technical_score"`
	PageTypeBreakdown   map[PageType]int   `json:"page_type_breakdown"`
	LinkStatusBreakdown map[LinkStatus]int `json:"link_status_breakdown"`
}

// ExportDocument is the self-contained JSON artifact for a run: metadata,
// policy, every record collection, the graph, change detection, and the
// retained source codes keyed by URL.
type ExportDocument struct {
	ExportInfo      ExportInfo           `json:"export_info"`
	Run             Run                  `json:"run"`
	Policy          Policy               `json:"policy"`
	Pages           []PageRecord         `json:"pages"`
	LinkValidations LinkValidationExport `json:"link_validations"`
	Graph           *GraphSnapshot       `json:"graph,omitempty"`
	ChangeReport    *ChangeReport        `json:"change_detection,omitempty"`
	SourceCodes     map[string]string    `json:"source_codes,omitempty"`
	Statistics      ExportStatistics     `json:"statistics"`
}
