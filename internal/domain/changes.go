package domain

import (
	"time"
)

// ChangeType identifies what differs about a page between two runs.
type ChangeType string

// Change type constants.
const (
	ChangeTitle     ChangeType = "title"
	ChangeWordCount ChangeType = "word_count"
	ChangePageType  ChangeType = "page_type"
	ChangeStructure ChangeType = "structure"
	ChangePath      ChangeType = "path"
)

// Impact is the qualitative severity of a change-detection result.
type Impact string

// Impact level constants. High means more than 20% of current pages
// changed, medium more than 10%, low anything less.
const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// ChangeReportNoPreviousData is the sentinel status emitted when a run has
// no prior run to compare against.
const ChangeReportNoPreviousData = "no_previous_data"

// ChangeEvent describes one observed difference on a page. Old and New hold
// the before and after values; the concrete type depends on Type (string for
// title and page type, int for word count, []string for path, absent for
// structure). Delta is set only for word-count changes.
type ChangeEvent struct {
	Type  ChangeType `json:"type"`
	Old   any        `json:"old,omitempty"`
	New   any        `json:"new,omitempty"`
	Delta int        `json:"delta,omitempty"`
}

// NewPage is a URL present in the current run but not the previous one.
type NewPage struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	WordCount    int       `json:"word_count"`
	Path         []string  `json:"path,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// RemovedPage is a URL present in the previous run but not the current one.
type RemovedPage struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ModifiedPage is a URL present in both runs with at least one change.
type ModifiedPage struct {
	URL     string        `json:"url"`
	Changes []ChangeEvent `json:"changes"`
}

// PathChange records a URL whose root path moved between runs.
type PathChange struct {
	URL        string   `json:"url"`
	OldPath    []string `json:"old_path"`
	NewPath    []string `json:"new_path"`
	DepthDelta int      `json:"depth_delta"`
}

// ChangeSummary tallies a change report.
type ChangeSummary struct {
	NewCount        int    `json:"new_count"`
	RemovedCount    int    `json:"removed_count"`
	ModifiedCount   int    `json:"modified_count"`
	PathChangeCount int    `json:"path_change_count"`
	TotalChanges    int    `json:"total_changes"`
	Impact          Impact `json:"impact"`
}

// ChangeReport is the full diff between the current run and the most recent
// prior run for the same start URL. When no prior run exists, Status is the
// no-previous-data sentinel and every set is empty.
type ChangeReport struct {
	Status        string         `json:"status,omitempty"`
	CurrentRunID  string         `json:"current_run_id"`
	PreviousRunID string         `json:"previous_run_id,omitempty"`
	DetectedAt    time.Time      `json:"detected_at"`
	NewPages      []NewPage      `json:"new_pages"`
	RemovedPages  []RemovedPage  `json:"removed_pages"`
	ModifiedPages []ModifiedPage `json:"modified_pages"`
	PathChanges   []PathChange   `json:"path_changes"`
	Summary       ChangeSummary  `json:"summary"`
}

// HasPreviousData reports whether the report holds a real comparison.
func (r *ChangeReport) HasPreviousData() bool {
	return r.Status != ChangeReportNoPreviousData
}
