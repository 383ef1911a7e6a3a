// Package validator re-checks every URL discovered during a crawl. Resource
// links pass without network traffic; page links are checked with HEAD in
// small parallel batches, and rate-limited targets get escalating retry
// rounds before being finalized as rate_limited. Rate-limited outcomes are
// reported distinctly and never counted as broken.
package validator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/urlutil"
)

// ErrCanceled is returned when validation observes a cancellation signal
// between batches or retry rounds. Partial results accompany it.
var ErrCanceled = errors.New("validation canceled")

// Options scopes one validation pass.
type Options struct {
	// MaxLinks caps how many page links are checked over the network.
	MaxLinks int
	// Skip lists URLs that already carry a validation record from the
	// crawl; they are not checked again.
	Skip map[string]struct{}
}

// Validator checks discovered links. Safe for a single validation pass at a
// time; create one per run.
type Validator struct {
	client *http.Client
	log    logger.Interface
	cfg    Config

	// CancelCheck, when set, is polled between batches and retry rounds.
	CancelCheck func(ctx context.Context) bool
}

// New creates a link validator.
func New(log logger.Interface, cfg Config) *Validator {
	cfg = cfg.WithDefaults()

	return &Validator{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    log.WithComponent("validator"),
		cfg:    cfg,
	}
}

// Validate checks the discovered links and returns one validation record
// per unique target URL. The returned slice is valid even when the error is
// ErrCanceled.
func (v *Validator) Validate(
	ctx context.Context, runID string, links []domain.LinkRecord, opts Options,
) ([]domain.LinkValidation, error) {
	resourceURLs, pageURLs := v.partition(links, opts)

	results := make([]domain.LinkValidation, 0, len(resourceURLs)+len(pageURLs))
	for _, resourceURL := range resourceURLs {
		results = append(results, syntheticValid(runID, resourceURL))
	}

	v.log.Info("link validation started",
		"run_id", runID,
		"page_links", len(pageURLs),
		"resource_links", len(resourceURLs),
	)

	checked, err := v.checkInBatches(ctx, runID, pageURLs, v.cfg.BatchSize, v.jitterBatchSleep)
	results = append(results, v.settled(checked)...)
	if err != nil {
		return results, err
	}

	retries, err := v.retryRateLimited(ctx, runID, rateLimited(checked))
	results = append(results, retries...)

	return results, err
}

// partition splits links into resource targets (validated synthetically)
// and unique page targets to check, honoring the skip set and the cap.
func (v *Validator) partition(links []domain.LinkRecord, opts Options) (resourceURLs, pageURLs []string) {
	seen := map[string]struct{}{}

	for _, link := range links {
		target := link.TargetURL
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		if _, skip := opts.Skip[target]; skip {
			continue
		}

		if link.Kind == domain.LinkKindResource || urlutil.IsResourceURL(target) {
			resourceURLs = append(resourceURLs, target)
			continue
		}

		if opts.MaxLinks > 0 && len(pageURLs) >= opts.MaxLinks {
			continue
		}
		pageURLs = append(pageURLs, target)
	}

	return resourceURLs, pageURLs
}

// checkInBatches runs the check over urls in parallel batches of batchSize,
// sleeping between batches. Cancellation is observed between batches only.
func (v *Validator) checkInBatches(
	ctx context.Context, runID string, urls []string, batchSize int, betweenBatches func() time.Duration,
) ([]domain.LinkValidation, error) {
	results := make([]domain.LinkValidation, 0, len(urls))

	for start := 0; start < len(urls); start += batchSize {
		if err := v.checkCancel(ctx); err != nil {
			return results, err
		}
		if start > 0 {
			if err := sleepContext(ctx, betweenBatches()); err != nil {
				return results, ErrCanceled
			}
		}

		end := min(start+batchSize, len(urls))
		batch := urls[start:end]

		batchResults := make([]domain.LinkValidation, len(batch))
		var wg sync.WaitGroup
		for i, target := range batch {
			wg.Add(1)
			go func(slot int, u string) {
				defer wg.Done()
				batchResults[slot] = v.check(ctx, runID, u)
			}(i, target)
		}
		wg.Wait()

		results = append(results, batchResults...)
	}

	return results, nil
}

// retryRateLimited runs up to MaxRetryRounds escalating rounds over the
// still-rate-limited URLs, finalizing leftovers as rate_limited.
func (v *Validator) retryRateLimited(
	ctx context.Context, runID string, pending []string,
) ([]domain.LinkValidation, error) {
	results := make([]domain.LinkValidation, 0, len(pending))

	for round := 1; round <= v.cfg.MaxRetryRounds && len(pending) > 0; round++ {
		if err := v.checkCancel(ctx); err != nil {
			return append(results, finalizeRateLimited(runID, pending, round-1)...), err
		}

		delay := retryRoundDelay(v.cfg.RetryDelayBase, v.cfg.RetryDelayCap, round)
		v.log.Info("retrying rate-limited links",
			"round", round,
			"remaining", len(pending),
			"delay", delay.String(),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return append(results, finalizeRateLimited(runID, pending, round-1)...), ErrCanceled
		}

		checked, err := v.checkInBatches(ctx, runID, pending, v.cfg.RetryBatchSize, v.jitterBatchSleep)
		results = append(results, v.settled(checked)...)
		if err != nil {
			return append(results, finalizeRateLimited(runID, remaining(pending, checked), round)...), err
		}

		pending = rateLimited(checked)
	}

	results = append(results, finalizeRateLimited(runID, pending, v.cfg.MaxRetryRounds)...)

	return results, nil
}

// check validates one URL: jitter, HEAD with redirects followed, and an
// optional GET to pick up the title of healthy pages.
func (v *Validator) check(ctx context.Context, runID, target string) domain.LinkValidation {
	_ = sleepContext(ctx, v.jitterCheck())

	validation := domain.LinkValidation{
		RunID:     runID,
		URL:       target,
		CheckedAt: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, http.NoBody)
	if err != nil {
		return brokenValidation(validation, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	start := time.Now()
	resp, err := v.client.Do(req)
	validation.ResponseTimeMs = time.Since(start).Milliseconds()

	if err != nil {
		var netErr net.Error
		if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			validation.Status = domain.LinkStatusTimeout
			message := fmt.Sprintf("timeout after %s", v.cfg.RequestTimeout)
			validation.ErrorMessage = &message
			return validation
		}
		return brokenValidation(validation, err)
	}
	resp.Body.Close()

	validation.StatusCode = resp.StatusCode
	validation.Status = domain.StatusForCode(resp.StatusCode)

	if validation.Status == domain.LinkStatusValid && v.cfg.FetchTitles {
		if title := v.fetchTitle(ctx, target); title != "" {
			validation.Title = &title
		}
	}

	return validation
}

// fetchTitle issues a GET just to read the document title. Failures are not
// validation failures; the HEAD already settled the status.
func (v *Validator) fetchTitle(ctx context.Context, target string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(doc.Find("title").First().Text())
}

// settled filters out rate-limited results, which go through retry rounds.
func (v *Validator) settled(checked []domain.LinkValidation) []domain.LinkValidation {
	out := make([]domain.LinkValidation, 0, len(checked))
	for _, validation := range checked {
		if validation.Status != domain.LinkStatusRateLimited {
			out = append(out, validation)
		}
	}
	return out
}

// rateLimited returns the URLs still answering 429.
func rateLimited(checked []domain.LinkValidation) []string {
	var out []string
	for _, validation := range checked {
		if validation.Status == domain.LinkStatusRateLimited {
			out = append(out, validation.URL)
		}
	}
	return out
}

// remaining returns the pending URLs that were not checked this round.
func remaining(pending []string, checked []domain.LinkValidation) []string {
	done := make(map[string]struct{}, len(checked))
	for _, validation := range checked {
		if validation.Status != domain.LinkStatusRateLimited {
			done[validation.URL] = struct{}{}
		}
	}

	var out []string
	for _, target := range pending {
		if _, ok := done[target]; !ok {
			out = append(out, target)
		}
	}
	return out
}

// finalizeRateLimited produces the terminal records for URLs that stayed
// rate limited through every retry round.
func finalizeRateLimited(runID string, urls []string, rounds int) []domain.LinkValidation {
	out := make([]domain.LinkValidation, 0, len(urls))
	for _, target := range urls {
		message := fmt.Sprintf("still rate limited after %d retry rounds", rounds)
		out = append(out, domain.LinkValidation{
			RunID:        runID,
			URL:          target,
			StatusCode:   429,
			Status:       domain.LinkStatusRateLimited,
			ErrorMessage: &message,
			CheckedAt:    time.Now().UTC(),
		})
	}
	return out
}

// syntheticValid is the pre-pass record for resource links: valid, no
// network round trip.
func syntheticValid(runID, target string) domain.LinkValidation {
	return domain.LinkValidation{
		RunID:      runID,
		URL:        target,
		StatusCode: 200,
		Status:     domain.LinkStatusValid,
		CheckedAt:  time.Now().UTC(),
	}
}

func brokenValidation(validation domain.LinkValidation, err error) domain.LinkValidation {
	validation.Status = domain.LinkStatusBroken
	message := err.Error()
	validation.ErrorMessage = &message
	return validation
}

// jitterCheck is the 0.1-0.5 s pre-check delay.
func (v *Validator) jitterCheck() time.Duration {
	return jitter(v.cfg.CheckJitterMin, v.cfg.CheckJitterMax)
}

// jitterBatchSleep is the 2-4 s pause between batches.
func (v *Validator) jitterBatchSleep() time.Duration {
	return jitter(v.cfg.BatchSleepMin, v.cfg.BatchSleepMax)
}

func jitter(minD, maxD time.Duration) time.Duration {
	if maxD <= minD {
		return minD
	}
	return minD + time.Duration(rand.Float64()*float64(maxD-minD))
}

// retryRoundDelay is min(base·2^round, cap) for a 1-based round.
func retryRoundDelay(base, capD time.Duration, round int) time.Duration {
	delay := base << uint(round)
	if delay <= 0 || delay > capD {
		return capD
	}
	return delay
}

func (v *Validator) checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	if v.CancelCheck != nil && v.CancelCheck(ctx) {
		return ErrCanceled
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
