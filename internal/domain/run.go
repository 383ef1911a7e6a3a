// Package domain provides domain models used across the application.
package domain

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// RunStatus identifies the lifecycle state of a crawl run.
type RunStatus string

// Run status constants.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Policy bounds and defaults.
const (
	MinCrawlDepth    = 1
	MaxCrawlDepth    = 5
	DefaultMaxDepth  = 2
	DefaultMaxPages  = 50
	MinLinksFactor   = 2 // lower bound: MaxLinksToValidate >= 2x MaxPages
	MaxLinksFactor   = 5 // upper bound: MaxLinksToValidate <= 5x MaxPages
	DefaultBatchSize = 10
)

// ErrEmptyStartURL is returned when a policy has no start URL.
var ErrEmptyStartURL = errors.New("start URL is required")

// Policy is the crawl configuration attached to a run. A snapshot is stored
// on the run row so later policy edits never change how a past run reads.
type Policy struct {
	StartURL           string `db:"-" json:"start_url"             mapstructure:"start_url"`
	MaxDepth           int    `db:"-" json:"max_depth"             mapstructure:"max_depth"`
	MaxPages           int    `db:"-" json:"max_pages"             mapstructure:"max_pages"`
	MaxLinksToValidate int    `db:"-" json:"max_links_to_validate" mapstructure:"max_links_to_validate"`
	Concurrency        int    `db:"-" json:"concurrency"           mapstructure:"concurrency"`

	// Link extraction toggles
	ExtractStaticLinks   bool `db:"-" json:"extract_static_links"   mapstructure:"extract_static_links"`
	ExtractDynamicLinks  bool `db:"-" json:"extract_dynamic_links"  mapstructure:"extract_dynamic_links"`
	ExtractResourceLinks bool `db:"-" json:"extract_resource_links" mapstructure:"extract_resource_links"`
	IncludeExternalLinks bool `db:"-" json:"include_external_links" mapstructure:"include_external_links"`
}

// Normalize applies defaults and clamps fields to their allowed ranges.
func (p *Policy) Normalize() {
	if p.MaxDepth == 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.MaxDepth < MinCrawlDepth {
		p.MaxDepth = MinCrawlDepth
	}
	if p.MaxDepth > MaxCrawlDepth {
		p.MaxDepth = MaxCrawlDepth
	}
	if p.MaxPages <= 0 {
		p.MaxPages = DefaultMaxPages
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultBatchSize
	}
	if p.MaxLinksToValidate < MinLinksFactor*p.MaxPages {
		p.MaxLinksToValidate = MinLinksFactor * p.MaxPages
	}
	if p.MaxLinksToValidate > MaxLinksFactor*p.MaxPages {
		p.MaxLinksToValidate = MaxLinksFactor * p.MaxPages
	}
}

// Validate checks that the policy can drive a crawl.
func (p *Policy) Validate() error {
	if p.StartURL == "" {
		return ErrEmptyStartURL
	}
	parsed, err := url.Parse(p.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL %q: %w", p.StartURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("start URL %q must use http or https", p.StartURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("start URL %q has no host", p.StartURL)
	}
	return nil
}

// Run represents a single crawl execution of an application.
type Run struct {
	// Identity
	ID            string `db:"id"             json:"id"`
	ApplicationID string `db:"application_id" json:"application_id"`
	StartURL      string `db:"start_url"      json:"start_url"`

	// Status
	Status RunStatus `db:"status" json:"status"`

	// Policy snapshot
	Policy Policy `db:"policy" json:"policy"`

	// Timing
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	// Aggregates, populated on completion
	PagesAnalyzed  int `db:"pages_analyzed"  json:"pages_analyzed"`
	LinksFound     int `db:"links_found"     json:"links_found"`
	BrokenLinks    int `db:"broken_links"    json:"broken_links"`
	BlankPages     int `db:"blank_pages"     json:"blank_pages"`
	ContentPages   int `db:"content_pages"   json:"content_pages"`
	TechnicalScore int `db:"technical_score" json:"technical_score"`

	// Task tracking
	TaskID       *string `db:"task_id"       json:"task_id,omitempty"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	StackTrace   *string `db:"stack_trace"   json:"stack_trace,omitempty"`
}

// ComputeTechnicalScore derives the 0-100 health score from broken and blank counts.
func ComputeTechnicalScore(brokenLinks, blankPages int) int {
	score := 100 - 10*(brokenLinks+blankPages)
	if score < 0 {
		return 0
	}
	return score
}
