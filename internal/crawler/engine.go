// Package crawler implements the adaptive crawl engine. It owns the
// frontier, the visited set, and the rate-limit counters that drive batch
// sizing: batches widen while responses stay clean and collapse to
// sequential fetching after 429s. All state is mutated only between batches,
// so the hot path needs no locking.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/sitewatch/internal/classifier"
	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/fetcher"
	"github.com/jonesrussell/sitewatch/internal/graph"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/structure"
	"github.com/jonesrussell/sitewatch/internal/urlutil"
)

// ErrCanceled is returned when the crawl observes a cancellation signal
// between batches. The partial result accompanying it is still valid.
var ErrCanceled = errors.New("crawl canceled")

// Fetcher retrieves a single URL. Implemented by fetcher.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// Stats are the engine's counters after a crawl.
type Stats struct {
	TotalRequests int `json:"total_requests"`
	Total429      int `json:"total_429"`
	PagesCrawled  int `json:"pages_crawled"`
	LinksFound    int `json:"links_found"`
}

// Result is everything a crawl produced: page records in batch completion
// order, discovered links, validation records for URLs that fetched but
// yielded no page, raw HTML per fetched page, and the parent-child tracker.
type Result struct {
	Pages       []domain.PageRecord
	Links       []domain.LinkRecord
	Validations []domain.LinkValidation
	Sources     map[string]string
	Tracker     *graph.Tracker
	Stats       Stats
}

// Counters is a snapshot of the adaptive state, exposed for tests and logs.
type Counters struct {
	TotalRequests     int
	Consecutive429    int
	Total429          int
	SlowModeRemaining int
	NextBatchSize     int
}

// Engine drives a single crawl. One engine per run; not safe for reuse.
type Engine struct {
	fetch     Fetcher
	classify  *classifier.Classifier
	extractor *structure.Extractor
	log       logger.Interface
	cfg       Config

	// OnPageCrawled, when set, is called after every batch with the number
	// of pages visited so far and the page cap.
	OnPageCrawled func(crawled, maxPages int)

	// CancelCheck, when set, is polled between batches in addition to the
	// context. Returning true aborts the crawl with ErrCanceled.
	CancelCheck func(ctx context.Context) bool

	// Crawl state. Owned by the engine, mutated only between batches.
	frontier          []string
	pending           map[string]struct{}
	visited           map[string]struct{}
	concurrency       int
	totalRequests     int
	consecutive429    int
	total429          int
	slowModeRemaining int
}

// New creates a crawl engine.
func New(fetch Fetcher, log logger.Interface, cfg Config) *Engine {
	return &Engine{
		fetch:     fetch,
		classify:  classifier.New(),
		extractor: structure.New(),
		log:       log.WithComponent("crawler"),
		cfg:       cfg.WithDefaults(),
		pending:   map[string]struct{}{},
		visited:   map[string]struct{}{},
	}
}

// fetchOutcome pairs a frontier URL with its fetch result.
type fetchOutcome struct {
	url  string
	resp *fetcher.Response
	err  error
}

// observed429 reports whether the fetch saw at least one 429, including
// attempts that later recovered and retries that never did.
func (o *fetchOutcome) observed429() bool {
	if o.resp != nil && o.resp.Observed429() {
		return true
	}
	var rateLimited *fetcher.RateLimitedError
	return errors.As(o.err, &rateLimited)
}

// Crawl runs the engine to completion: frontier exhausted, page cap
// reached, or cancellation observed. The returned result is valid even when
// the error is ErrCanceled.
func (e *Engine) Crawl(ctx context.Context, runID string, policy domain.Policy) (*Result, error) {
	policy.Normalize()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("crawl policy: %w", err)
	}

	startURL, err := urlutil.Canonicalize(policy.StartURL)
	if err != nil {
		return nil, fmt.Errorf("canonicalize start URL: %w", err)
	}

	tracker, trackerErr := graph.NewTracker(startURL)
	if trackerErr != nil {
		return nil, fmt.Errorf("init path tracker: %w", trackerErr)
	}

	result := &Result{
		Sources: map[string]string{},
		Tracker: tracker,
	}

	e.concurrency = policy.Concurrency
	e.frontier = []string{startURL}
	e.pending[startURL] = struct{}{}

	e.log.Info("crawl started",
		"run_id", runID,
		"start_url", startURL,
		"max_depth", policy.MaxDepth,
		"max_pages", policy.MaxPages,
	)

	for len(e.frontier) > 0 && len(e.visited) < policy.MaxPages {
		if cancelErr := e.checkCancel(ctx); cancelErr != nil {
			e.finishStats(result)
			return result, cancelErr
		}

		outcomes, batchErr := e.fetchBatch(ctx, e.takeBatch(policy.MaxPages))
		saw429 := false

		for i := range outcomes {
			if outcomes[i].observed429() {
				saw429 = true
			}
			e.processOutcome(runID, startURL, policy, result, &outcomes[i])
		}

		e.adjustCounters(saw429)

		if batchErr != nil {
			e.finishStats(result)
			return result, batchErr
		}

		if e.OnPageCrawled != nil {
			e.OnPageCrawled(len(e.visited), policy.MaxPages)
		}

		if len(e.frontier) > 0 && len(e.visited) < policy.MaxPages {
			if sleepErr := sleepContext(ctx, e.interBatchSleep()); sleepErr != nil {
				e.finishStats(result)
				return result, ErrCanceled
			}
		}
	}

	e.finishStats(result)
	e.log.Info("crawl finished",
		"run_id", runID,
		"pages", len(result.Pages),
		"links", len(result.Links),
		"requests", e.totalRequests,
		"rate_limit_hits", e.total429,
	)

	return result, nil
}

// Counters returns the current adaptive state.
func (e *Engine) Counters() Counters {
	return Counters{
		TotalRequests:     e.totalRequests,
		Consecutive429:    e.consecutive429,
		Total429:          e.total429,
		SlowModeRemaining: e.slowModeRemaining,
		NextBatchSize:     e.nextBatchSize(),
	}
}

// nextBatchSize computes the batch size from the 429 history.
func (e *Engine) nextBatchSize() int {
	switch {
	case e.slowModeRemaining > 0:
		return 1
	case e.consecutive429 > consecutive429Ceiling:
		return 1
	case e.consecutive429 > 0:
		return reducedBatchSize
	default:
		return min(maxBatchSize, max(1, e.concurrency))
	}
}

// takeBatch pops up to batch-size URLs from the frontier, never exceeding
// the remaining page budget.
func (e *Engine) takeBatch(maxPages int) []string {
	size := e.nextBatchSize()
	if budget := maxPages - len(e.visited); size > budget {
		size = budget
	}
	if size > len(e.frontier) {
		size = len(e.frontier)
	}

	batch := e.frontier[:size:size]
	e.frontier = e.frontier[size:]

	return batch
}

// fetchBatch issues the batch: sequentially with a gap when the size is 1,
// in parallel bounded by the batch size otherwise. Outcomes arrive in
// completion order. A non-nil error means the context was canceled; the
// outcomes gathered so far are still returned.
func (e *Engine) fetchBatch(ctx context.Context, batch []string) ([]fetchOutcome, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	if len(batch) == 1 || e.nextBatchSize() == 1 {
		return e.fetchSequential(ctx, batch)
	}

	outcomes := make([]fetchOutcome, 0, len(batch))
	results := make(chan fetchOutcome, len(batch))

	var wg sync.WaitGroup
	for _, rawURL := range batch {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			resp, err := e.fetch.Fetch(ctx, u)
			results <- fetchOutcome{url: u, resp: resp, err: err}
		}(rawURL)
	}

	wg.Wait()
	close(results)

	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}

	return outcomes, ctx.Err()
}

// fetchSequential fetches one URL at a time with the configured gap.
func (e *Engine) fetchSequential(ctx context.Context, batch []string) ([]fetchOutcome, error) {
	outcomes := make([]fetchOutcome, 0, len(batch))

	for i, rawURL := range batch {
		if i > 0 {
			if err := sleepContext(ctx, e.cfg.SequentialGap); err != nil {
				return outcomes, ErrCanceled
			}
		}

		resp, err := e.fetch.Fetch(ctx, rawURL)
		outcomes = append(outcomes, fetchOutcome{url: rawURL, resp: resp, err: err})

		if ctx.Err() != nil {
			return outcomes, ErrCanceled
		}
	}

	return outcomes, nil
}

// processOutcome turns one fetch outcome into records and frontier growth.
func (e *Engine) processOutcome(
	runID, startURL string, policy domain.Policy, result *Result, outcome *fetchOutcome,
) {
	e.totalRequests++
	e.visited[outcome.url] = struct{}{}
	delete(e.pending, outcome.url)

	if outcome.err != nil {
		result.Validations = append(result.Validations, validationFromError(runID, outcome.url, outcome.err))
		return
	}

	resp := outcome.resp
	if resp.StatusCode != 200 || len(resp.Body) == 0 {
		result.Validations = append(result.Validations,
			validationFromStatus(runID, outcome.url, resp.StatusCode, resp.Elapsed))
		return
	}

	page := e.buildPage(runID, outcome.url, resp, result.Tracker)
	result.Pages = append(result.Pages, page)
	result.Sources[outcome.url] = string(resp.Body)

	if urlutil.StructuralDepth(startURL, outcome.url) < policy.MaxDepth {
		e.extractAndEnqueue(startURL, outcome.url, string(resp.Body), policy, result)
	}
}

// buildPage classifies the HTML and assembles the page record. A parser
// failure yields a minimal error-typed record rather than dropping the page.
func (e *Engine) buildPage(runID, pageURL string, resp *fetcher.Response, tracker *graph.Tracker) domain.PageRecord {
	page := domain.PageRecord{
		RunID:          runID,
		URL:            pageURL,
		FetchedAt:      time.Now().UTC(),
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: resp.Elapsed.Milliseconds(),
		Path:           tracker.Path(pageURL),
	}
	if parent, ok := tracker.Parent(pageURL); ok {
		page.ParentURL = &parent
	}

	analysis, err := e.classify.Analyze(string(resp.Body))
	if err != nil {
		e.log.Warn("page classification failed", "url", pageURL, "error", err)
		page.PageType = domain.PageTypeError
		return page
	}

	page.Title = analysis.Title
	page.WordCount = analysis.WordCount
	page.PageType = analysis.PageType
	page.HasHeader = analysis.HasHeader
	page.HasFooter = analysis.HasFooter
	page.HasNavigation = analysis.HasNavigation

	if pageStructure, structErr := e.extractor.Extract(string(resp.Body)); structErr == nil {
		page.Structure = *pageStructure
	} else {
		e.log.Warn("structure extraction failed", "url", pageURL, "error", structErr)
	}

	return page
}

// extractAndEnqueue records discovered links and grows the frontier with
// same-domain page links whose structural depth stays under the bound.
// Parent edges are recorded for every same-domain page link, fetched or not.
func (e *Engine) extractAndEnqueue(
	startURL, pageURL, html string, policy domain.Policy, result *Result,
) {
	links := ExtractLinks(pageURL, startURL, html, ExtractOptions{
		Static:          policy.ExtractStaticLinks,
		Dynamic:         policy.ExtractDynamicLinks,
		Resource:        policy.ExtractResourceLinks,
		IncludeExternal: policy.IncludeExternalLinks,
	})

	for _, link := range links {
		result.Links = append(result.Links, link)

		if link.Kind == domain.LinkKindResource || !urlutil.SameHost(link.TargetURL, startURL) {
			continue
		}

		result.Tracker.AddEdge(pageURL, link.TargetURL)

		if _, seen := e.visited[link.TargetURL]; seen {
			continue
		}
		if _, queued := e.pending[link.TargetURL]; queued {
			continue
		}
		if urlutil.StructuralDepth(startURL, link.TargetURL) >= policy.MaxDepth {
			continue
		}

		e.pending[link.TargetURL] = struct{}{}
		e.frontier = append(e.frontier, link.TargetURL)
	}
}

// adjustCounters applies the post-batch policy: any 429 arms slow mode,
// clean batches wind both counters down.
func (e *Engine) adjustCounters(saw429 bool) {
	if saw429 {
		e.slowModeRemaining = slowModePages
		e.consecutive429++
		e.total429++
		e.log.Warn("rate limiting observed, entering slow mode",
			"consecutive_429", e.consecutive429,
			"total_429", e.total429,
		)
		return
	}

	if e.slowModeRemaining > 0 {
		e.slowModeRemaining--
	}
	if e.consecutive429 > 0 {
		e.consecutive429--
	}
}

// interBatchSleep is longer while slow mode is active.
func (e *Engine) interBatchSleep() time.Duration {
	if e.slowModeRemaining > 0 {
		return e.cfg.SlowBatchSleep
	}
	return e.cfg.BatchSleep
}

// checkCancel polls the context and the optional external cancel flag.
func (e *Engine) checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	if e.CancelCheck != nil && e.CancelCheck(ctx) {
		return ErrCanceled
	}
	return nil
}

// finishStats copies the counters onto the result.
func (e *Engine) finishStats(result *Result) {
	result.Stats = Stats{
		TotalRequests: e.totalRequests,
		Total429:      e.total429,
		PagesCrawled:  len(result.Pages),
		LinksFound:    len(result.Links),
	}
}

// validationFromStatus builds the link-validation record for a fetched URL
// that produced no page record.
func validationFromStatus(runID, rawURL string, statusCode int, elapsed time.Duration) domain.LinkValidation {
	return domain.LinkValidation{
		RunID:          runID,
		URL:            rawURL,
		StatusCode:     statusCode,
		Status:         domain.StatusForCode(statusCode),
		ResponseTimeMs: elapsed.Milliseconds(),
		CheckedAt:      time.Now().UTC(),
	}
}

// validationFromError maps a typed fetch error to a validation record.
func validationFromError(runID, rawURL string, err error) domain.LinkValidation {
	validation := domain.LinkValidation{
		RunID:     runID,
		URL:       rawURL,
		Status:    domain.LinkStatusBroken,
		CheckedAt: time.Now().UTC(),
	}

	message := err.Error()
	validation.ErrorMessage = &message

	var timeoutErr *fetcher.TimeoutError
	var rateLimitedErr *fetcher.RateLimitedError

	switch {
	case errors.As(err, &timeoutErr):
		validation.Status = domain.LinkStatusTimeout
		validation.ResponseTimeMs = timeoutErr.Elapsed.Milliseconds()
	case errors.As(err, &rateLimitedErr):
		validation.Status = domain.LinkStatusRateLimited
		validation.StatusCode = 429
		validation.ResponseTimeMs = rateLimitedErr.Elapsed.Milliseconds()
	}

	return validation
}

// sleepContext sleeps for d or returns early with the context's error.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
