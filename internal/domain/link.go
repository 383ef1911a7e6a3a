// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// LinkKind identifies how a link was discovered.
type LinkKind string

// Link kind constants.
const (
	LinkKindStatic   LinkKind = "static"   // a, link, area href attributes
	LinkKindDynamic  LinkKind = "dynamic"  // onclick, data-url, script text
	LinkKindResource LinkKind = "resource" // img, stylesheet, script sources
)

// LinkStatus is the outcome of validating a discovered link.
type LinkStatus string

// Link validation status constants.
const (
	LinkStatusValid       LinkStatus = "valid"
	LinkStatusRedirect    LinkStatus = "redirect"
	LinkStatusBroken      LinkStatus = "broken"
	LinkStatusTimeout     LinkStatus = "timeout"
	LinkStatusRateLimited LinkStatus = "rate_limited"
	LinkStatusUnknown     LinkStatus = "unknown"
)

// LinkRecord is a link discovered during the crawl, before validation.
type LinkRecord struct {
	SourceURL string   `json:"source_url"`
	TargetURL string   `json:"target_url"`
	Kind      LinkKind `json:"kind"`
	Text      string   `json:"text,omitempty"`
	Context   string   `json:"context,omitempty"`
}

// LinkValidation is the persisted outcome of checking one discovered URL.
// Rate-limited outcomes are reported distinctly and never counted as broken.
type LinkValidation struct {
	RunID          string     `db:"run_id"           json:"run_id"`
	URL            string     `db:"url"              json:"url"`
	StatusCode     int        `db:"status_code"      json:"status_code"`
	Status         LinkStatus `db:"status"           json:"status"`
	ResponseTimeMs int64      `db:"response_time_ms" json:"response_time_ms"`
	Title          *string    `db:"title"            json:"title,omitempty"`
	ErrorMessage   *string    `db:"error_message"    json:"error_message,omitempty"`
	CheckedAt      time.Time  `db:"checked_at"       json:"checked_at"`
}

// IsBroken reports whether the validation counts toward the broken tally.
func (v *LinkValidation) IsBroken() bool {
	return v.Status == LinkStatusBroken || v.Status == LinkStatusTimeout
}

// StatusForCode maps an HTTP status code to a link validation status. 429 is
// rate_limited so callers can schedule a retry instead of reporting broken.
func StatusForCode(code int) LinkStatus {
	switch {
	case code == 429:
		return LinkStatusRateLimited
	case code >= 200 && code < 300:
		return LinkStatusValid
	case code >= 300 && code < 400:
		return LinkStatusRedirect
	case code >= 400 && code < 600:
		return LinkStatusBroken
	default:
		return LinkStatusUnknown
	}
}

// BrokenLinkDetail pairs a broken link validation with the page that linked
// to it, for drill-down views.
type BrokenLinkDetail struct {
	Validation LinkValidation `json:"validation"`
	SourceURL  string         `json:"source_url,omitempty"`
	SourcePath []string       `json:"source_path,omitempty"`
}
