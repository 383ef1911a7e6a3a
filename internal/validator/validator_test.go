package validator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/validator"
)

const validatorTestRunID = "run-1"

// fastConfig removes the politeness delays so tests finish quickly.
var fastConfig = validator.Config{
	RequestTimeout: 2 * time.Second,
	CheckJitterMin: time.Millisecond,
	CheckJitterMax: 2 * time.Millisecond,
	BatchSleepMin:  time.Millisecond,
	BatchSleepMax:  2 * time.Millisecond,
	RetryDelayBase: time.Millisecond,
	RetryDelayCap:  2 * time.Millisecond,
}

// routeHandler serves per-path scripted statuses and counts requests.
type routeHandler struct {
	mu       sync.Mutex
	statuses map[string][]int // path -> status sequence, last repeats
	counts   map[string]int
	titles   map[string]string
}

func newRouteHandler() *routeHandler {
	return &routeHandler{
		statuses: map[string][]int{},
		counts:   map[string]int{},
		titles:   map[string]string{},
	}
}

func (h *routeHandler) set(path string, statuses ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[path] = statuses
}

func (h *routeHandler) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[path]
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	seq, ok := h.statuses[r.URL.Path]
	idx := h.counts[r.URL.Path]
	h.counts[r.URL.Path]++
	title := h.titles[r.URL.Path]
	h.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if idx >= len(seq) {
		idx = len(seq) - 1
	}

	w.WriteHeader(seq[idx])
	if r.Method == http.MethodGet && title != "" {
		_, _ = w.Write([]byte("<html><head><title>" + title + "</title></head></html>"))
	}
}

func pageLink(server, path string) domain.LinkRecord {
	return domain.LinkRecord{
		SourceURL: server + "/",
		TargetURL: server + path,
		Kind:      domain.LinkKindStatic,
	}
}

func statusByURL(results []domain.LinkValidation) map[string]domain.LinkStatus {
	out := map[string]domain.LinkStatus{}
	for _, validation := range results {
		out[validation.URL] = validation.Status
	}
	return out
}

func TestValidateCategorizesStatuses(t *testing.T) {
	handler := newRouteHandler()
	handler.set("/ok", http.StatusOK)
	handler.set("/gone", http.StatusNotFound)
	handler.set("/boom", http.StatusInternalServerError)

	server := httptest.NewServer(handler)
	defer server.Close()

	v := validator.New(logger.NewNoOp(), fastConfig)
	results, err := v.Validate(context.Background(), validatorTestRunID, []domain.LinkRecord{
		pageLink(server.URL, "/ok"),
		pageLink(server.URL, "/gone"),
		pageLink(server.URL, "/boom"),
	}, validator.Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	statuses := statusByURL(results)
	assert.Equal(t, domain.LinkStatusValid, statuses[server.URL+"/ok"])
	assert.Equal(t, domain.LinkStatusBroken, statuses[server.URL+"/gone"])
	assert.Equal(t, domain.LinkStatusBroken, statuses[server.URL+"/boom"])
}

func TestValidateResourcePrePass(t *testing.T) {
	handler := newRouteHandler()
	server := httptest.NewServer(handler)
	defer server.Close()

	links := []domain.LinkRecord{
		{SourceURL: server.URL, TargetURL: server.URL + "/style.css", Kind: domain.LinkKindResource},
		{SourceURL: server.URL, TargetURL: server.URL + "/deep/file.pdf", Kind: domain.LinkKindStatic},
	}

	v := validator.New(logger.NewNoOp(), fastConfig)
	results, err := v.Validate(context.Background(), validatorTestRunID, links, validator.Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, validation := range results {
		assert.Equal(t, domain.LinkStatusValid, validation.Status)
		assert.Equal(t, 200, validation.StatusCode)
		assert.Zero(t, validation.ResponseTimeMs)
	}

	// No network request was issued for either resource URL.
	assert.Zero(t, handler.count("/style.css"))
	assert.Zero(t, handler.count("/deep/file.pdf"))
}

func TestValidateRetriesRateLimited(t *testing.T) {
	handler := newRouteHandler()
	handler.set("/flaky", http.StatusTooManyRequests, http.StatusOK)

	server := httptest.NewServer(handler)
	defer server.Close()

	v := validator.New(logger.NewNoOp(), fastConfig)
	results, err := v.Validate(context.Background(), validatorTestRunID,
		[]domain.LinkRecord{pageLink(server.URL, "/flaky")}, validator.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, domain.LinkStatusValid, results[0].Status)
	assert.Equal(t, 2, handler.count("/flaky"))
}

func TestValidateFinalizesStubbornRateLimits(t *testing.T) {
	handler := newRouteHandler()
	handler.set("/always429", http.StatusTooManyRequests)

	server := httptest.NewServer(handler)
	defer server.Close()

	cfg := fastConfig
	cfg.MaxRetryRounds = 3

	v := validator.New(logger.NewNoOp(), cfg)
	results, err := v.Validate(context.Background(), validatorTestRunID,
		[]domain.LinkRecord{pageLink(server.URL, "/always429")}, validator.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, domain.LinkStatusRateLimited, results[0].Status)
	assert.Equal(t, 429, results[0].StatusCode)
	require.NotNil(t, results[0].ErrorMessage)
	assert.Contains(t, *results[0].ErrorMessage, "rate limited")

	// Initial check plus one per retry round.
	assert.Equal(t, 4, handler.count("/always429"))
}

func TestValidateHonorsSkipAndCap(t *testing.T) {
	handler := newRouteHandler()
	handler.set("/a", http.StatusOK)
	handler.set("/b", http.StatusOK)
	handler.set("/c", http.StatusOK)

	server := httptest.NewServer(handler)
	defer server.Close()

	links := []domain.LinkRecord{
		pageLink(server.URL, "/a"),
		pageLink(server.URL, "/b"),
		pageLink(server.URL, "/c"),
	}

	v := validator.New(logger.NewNoOp(), fastConfig)
	results, err := v.Validate(context.Background(), validatorTestRunID, links, validator.Options{
		MaxLinks: 1,
		Skip:     map[string]struct{}{server.URL + "/a": {}},
	})
	require.NoError(t, err)

	// /a skipped, cap admits only /b.
	require.Len(t, results, 1)
	assert.Equal(t, server.URL+"/b", results[0].URL)
	assert.Zero(t, handler.count("/a"))
	assert.Zero(t, handler.count("/c"))
}

func TestValidateFetchesTitles(t *testing.T) {
	handler := newRouteHandler()
	handler.set("/titled", http.StatusOK)
	handler.titles["/titled"] = "Welcome"

	server := httptest.NewServer(handler)
	defer server.Close()

	cfg := fastConfig
	cfg.FetchTitles = true

	v := validator.New(logger.NewNoOp(), cfg)
	results, err := v.Validate(context.Background(), validatorTestRunID,
		[]domain.LinkRecord{pageLink(server.URL, "/titled")}, validator.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NotNil(t, results[0].Title)
	assert.Equal(t, "Welcome", *results[0].Title)
	// HEAD then GET.
	assert.Equal(t, 2, handler.count("/titled"))
}

func TestValidateDeduplicatesTargets(t *testing.T) {
	handler := newRouteHandler()
	handler.set("/dup", http.StatusOK)

	server := httptest.NewServer(handler)
	defer server.Close()

	links := []domain.LinkRecord{
		pageLink(server.URL, "/dup"),
		pageLink(server.URL, "/dup"),
	}

	v := validator.New(logger.NewNoOp(), fastConfig)
	results, err := v.Validate(context.Background(), validatorTestRunID, links, validator.Options{})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, 1, handler.count("/dup"))
}

func TestValidateCancellation(t *testing.T) {
	handler := newRouteHandler()
	for _, path := range []string{"/a", "/b", "/c", "/d", "/e", "/f"} {
		handler.set(path, http.StatusOK)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	links := []domain.LinkRecord{
		pageLink(server.URL, "/a"), pageLink(server.URL, "/b"), pageLink(server.URL, "/c"),
		pageLink(server.URL, "/d"), pageLink(server.URL, "/e"), pageLink(server.URL, "/f"),
	}

	v := validator.New(logger.NewNoOp(), fastConfig)

	batches := 0
	v.CancelCheck = func(context.Context) bool {
		batches++
		return batches > 1
	}

	results, err := v.Validate(context.Background(), validatorTestRunID, links, validator.Options{})
	require.ErrorIs(t, err, validator.ErrCanceled)
	assert.Len(t, results, 3, "first batch of three completed before cancellation")
}
