// Package executor drives one crawl run end to end: crawl, validate, diff
// against the previous run, persist, and finalize the run row. Progress and
// cancellation flow through injected hooks so the executor stays independent
// of the queue transport.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jonesrussell/sitewatch/internal/changes"
	"github.com/jonesrussell/sitewatch/internal/crawler"
	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/fetcher"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/notify"
	"github.com/jonesrussell/sitewatch/internal/storage"
	"github.com/jonesrussell/sitewatch/internal/validator"
)

// Progress milestones. The crawl phase interpolates between its bounds.
const (
	progressStarted     = 10
	progressCrawlStart  = 20
	progressCrawlDone   = 80
	progressValidated   = 85
	progressPersisting  = 90
	progressCompleted   = 100
	crawlProgressWindow = progressCrawlDone - progressCrawlStart
)

// Hooks are the per-run callbacks supplied by the transport layer. Both are
// optional.
type Hooks struct {
	// Progress reports a phase change as a percentage and a short message.
	Progress func(ctx context.Context, percent int, message string)
	// CancelRequested is polled between crawl batches and validation rounds.
	CancelRequested func(ctx context.Context) bool
}

// Config bundles the tunables for the phases the executor runs.
type Config struct {
	Fetcher   fetcher.Config   `mapstructure:"fetcher"   yaml:"fetcher"`
	Crawler   crawler.Config   `mapstructure:"crawler"   yaml:"crawler"`
	Validator validator.Config `mapstructure:"validator" yaml:"validator"`
}

// Executor runs crawl tasks. Safe for concurrent use; all per-run state
// lives on the stack of Execute.
type Executor struct {
	store    storage.Store
	notifier notify.Notifier
	log      logger.Interface
	cfg      Config

	// NewFetcher builds the page fetcher for a run. Overridable in tests.
	NewFetcher func() crawler.Fetcher
}

// New creates an executor.
func New(store storage.Store, notifier notify.Notifier, log logger.Interface, cfg Config) *Executor {
	e := &Executor{
		store:    store,
		notifier: notifier,
		log:      log.WithComponent("executor"),
		cfg:      cfg,
	}
	e.NewFetcher = func() crawler.Fetcher {
		return fetcher.New(e.log, e.cfg.Fetcher)
	}
	return e
}

// Execute runs one crawl to a terminal state. The returned error reflects
// the run outcome; the run row always ends up completed or failed, and
// partial results gathered before a failure or cancellation are persisted.
func (e *Executor) Execute(ctx context.Context, runID string, hooks Hooks) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status.IsTerminal() {
		e.log.Info("run already terminal, skipping", "run_id", runID, "status", run.Status)
		return nil
	}

	now := time.Now().UTC()
	run.Status = domain.RunStatusRunning
	run.StartedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	e.report(ctx, hooks, progressStarted, "starting crawl")

	outcome := e.runPhases(ctx, run, hooks)

	e.aggregate(run, outcome)
	e.finalize(ctx, run, outcome.err)

	if outcome.err == nil {
		e.report(ctx, hooks, progressCompleted, "completed")
	}

	e.notify(ctx, run)

	return outcome.err
}

// outcome carries everything the phases produced, complete or not.
type outcome struct {
	crawl       *crawler.Result
	validations []domain.LinkValidation
	report      *domain.ChangeReport
	err         error
}

// runPhases executes crawl, validation, and change detection, stopping at
// the first failure but keeping whatever was gathered. Persistence always
// runs on the partial outcome.
func (e *Executor) runPhases(ctx context.Context, run *domain.Run, hooks Hooks) outcome {
	var out outcome

	out.crawl, out.err = e.crawl(ctx, run, hooks)
	if out.crawl != nil {
		out.validations = append(out.validations, out.crawl.Validations...)
	}

	if out.err == nil {
		e.report(ctx, hooks, progressCrawlDone, "validating links")

		var checked []domain.LinkValidation
		checked, out.err = e.validate(ctx, run, out.crawl, hooks)
		out.validations = append(out.validations, checked...)
	}

	if out.err == nil {
		e.report(ctx, hooks, progressValidated, "detecting changes")
		out.report, out.err = e.detectChanges(ctx, run, out.crawl)
	}

	e.report(ctx, hooks, progressPersisting, "persisting results")
	if persistErr := e.persist(ctx, run.ID, out); persistErr != nil && out.err == nil {
		out.err = persistErr
	}

	return out
}

// crawl runs the adaptive engine with progress interpolated across the
// crawl window.
func (e *Executor) crawl(ctx context.Context, run *domain.Run, hooks Hooks) (*crawler.Result, error) {
	engine := crawler.New(e.NewFetcher(), e.log, e.cfg.Crawler)
	engine.CancelCheck = hooks.CancelRequested
	engine.OnPageCrawled = func(crawled, maxPages int) {
		percent := progressCrawlStart
		if maxPages > 0 {
			percent += crawlProgressWindow * crawled / maxPages
		}
		e.report(ctx, hooks, min(percent, progressCrawlDone), "crawling")
	}

	result, err := engine.Crawl(ctx, run.ID, run.Policy)
	if err != nil {
		return result, fmt.Errorf("crawl: %w", err)
	}
	return result, nil
}

// validate re-checks discovered links, skipping URLs the crawl already
// produced a validation for.
func (e *Executor) validate(
	ctx context.Context, run *domain.Run, crawl *crawler.Result, hooks Hooks,
) ([]domain.LinkValidation, error) {
	skip := make(map[string]struct{}, len(crawl.Validations))
	for i := range crawl.Validations {
		skip[crawl.Validations[i].URL] = struct{}{}
	}

	v := validator.New(e.log, e.cfg.Validator)
	v.CancelCheck = hooks.CancelRequested

	checked, err := v.Validate(ctx, run.ID, crawl.Links, validator.Options{
		MaxLinks: run.Policy.MaxLinksToValidate,
		Skip:     skip,
	})
	if err != nil {
		return checked, fmt.Errorf("validate links: %w", err)
	}
	return checked, nil
}

// detectChanges diffs the run against the most recent completed run for the
// same start URL.
func (e *Executor) detectChanges(
	ctx context.Context, run *domain.Run, crawl *crawler.Result,
) (*domain.ChangeReport, error) {
	previous, err := e.store.PreviousCompletedRun(ctx, run.StartURL, run.CreatedAt, run.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNoPreviousRun) {
			return changes.NoPrevious(run.ID), nil
		}
		return nil, fmt.Errorf("find previous run: %w", err)
	}

	previousPages, err := e.store.GetPages(ctx, previous.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous pages: %w", err)
	}

	return changes.Detect(run.ID, previous.ID, crawl.Pages, previousPages), nil
}

// persist writes every collection the run produced. Each step retries once
// before giving up.
func (e *Executor) persist(ctx context.Context, runID string, out outcome) error {
	if out.crawl == nil {
		return nil
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"pages", func() error { return e.store.InsertPages(ctx, out.crawl.Pages) }},
		{"link validations", func() error { return e.store.InsertLinkValidations(ctx, out.validations) }},
		{"graph", func() error { return e.store.SaveGraph(ctx, out.crawl.Tracker.Snapshot(runID)) }},
		{"page sources", func() error { return e.store.InsertPageSources(ctx, e.retainedSources(runID, out.crawl)) }},
	}
	if out.report != nil {
		steps = append(steps, struct {
			name string
			fn   func() error
		}{"change report", func() error { return e.store.SaveChangeReport(ctx, out.report) }})
	}

	for _, step := range steps {
		if err := e.retryOnce(step.name, step.fn); err != nil {
			return fmt.Errorf("persist %s: %w", step.name, err)
		}
	}

	return nil
}

// retainedSources selects the HTML worth storing: only pages that link to
// at least one child. Leaf pages resolve their source through the graph.
func (e *Executor) retainedSources(runID string, crawl *crawler.Result) []domain.PageSource {
	savedAt := time.Now().UTC()

	sources := make([]domain.PageSource, 0, len(crawl.Sources))
	for url, html := range crawl.Sources {
		if !crawl.Tracker.HasChildren(url) {
			continue
		}

		source := domain.PageSource{RunID: runID, URL: url, HTML: html, SavedAt: savedAt}
		if parent, ok := crawl.Tracker.Parent(url); ok {
			source.ParentURL = &parent
		}
		sources = append(sources, source)
	}

	return sources
}

// retryOnce runs fn, retrying a single time on failure.
func (e *Executor) retryOnce(name string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	e.log.Warn("persistence step failed, retrying", "step", name, "error", err)
	return fn()
}

// aggregate folds the gathered records into the run's counters. Partial
// results still count.
func (e *Executor) aggregate(run *domain.Run, out outcome) {
	if out.crawl != nil {
		run.PagesAnalyzed = len(out.crawl.Pages)
		run.LinksFound = len(out.crawl.Links)

		for i := range out.crawl.Pages {
			switch out.crawl.Pages[i].PageType {
			case domain.PageTypeBlank:
				run.BlankPages++
			case domain.PageTypeContent:
				run.ContentPages++
			}
		}
	}

	for i := range out.validations {
		if out.validations[i].IsBroken() {
			run.BrokenLinks++
		}
	}

	run.TechnicalScore = domain.ComputeTechnicalScore(run.BrokenLinks, run.BlankPages)
}

// finalize writes the terminal run row. A failure here is logged, not
// returned, so the phase error stays primary.
func (e *Executor) finalize(ctx context.Context, run *domain.Run, phaseErr error) {
	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt

	if phaseErr == nil {
		run.Status = domain.RunStatusCompleted
	} else {
		run.Status = domain.RunStatusFailed
		message := phaseErr.Error()
		stack := string(debug.Stack())
		run.ErrorMessage = &message
		run.StackTrace = &stack
	}

	if err := e.retryOnce("run finalize", func() error { return e.store.UpdateRun(ctx, run) }); err != nil {
		e.log.Error("finalize run", "run_id", run.ID, "error", err)
	}
}

// notify announces the terminal state.
func (e *Executor) notify(ctx context.Context, run *domain.Run) {
	event := notify.Event{
		RunID:          run.ID,
		StartURL:       run.StartURL,
		Status:         run.Status,
		PagesAnalyzed:  run.PagesAnalyzed,
		LinksFound:     run.LinksFound,
		BrokenLinks:    run.BrokenLinks,
		TechnicalScore: run.TechnicalScore,
		FinishedAt:     time.Now().UTC(),
	}
	if run.ErrorMessage != nil {
		event.Error = *run.ErrorMessage
	}

	e.notifier.RunFinished(ctx, event)
}

// report invokes the progress hook when one is set.
func (e *Executor) report(ctx context.Context, hooks Hooks, percent int, message string) {
	if hooks.Progress != nil {
		hooks.Progress(ctx, percent, message)
	}
}
