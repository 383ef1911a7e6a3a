package storage

import "errors"

// Sentinel errors returned by the store. Callers match with errors.Is.
var (
	// ErrRunNotFound is returned when a run id matches no row.
	ErrRunNotFound = errors.New("run not found")

	// ErrPageNotFound is returned when a (run, URL) pair matches no page.
	ErrPageNotFound = errors.New("page not found")

	// ErrSourceNotFound is returned when neither a URL nor any of its
	// ancestors within the hop limit stored HTML.
	ErrSourceNotFound = errors.New("page source not found")

	// ErrGraphNotFound is returned when a run has no stored graph.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrChangeReportNotFound is returned when a run has no change report.
	ErrChangeReportNotFound = errors.New("change report not found")

	// ErrNoPreviousRun is returned when a start URL has no earlier
	// completed run to compare against.
	ErrNoPreviousRun = errors.New("no previous run")
)
