package executor_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/sitewatch/internal/crawler"
	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/executor"
	"github.com/jonesrussell/sitewatch/internal/fetcher"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/notify"
	"github.com/jonesrussell/sitewatch/internal/storage"
	"github.com/jonesrussell/sitewatch/internal/validator"
)

// fakeStore is an in-memory storage.Store for executor tests.
type fakeStore struct {
	mu sync.Mutex

	runs        map[string]*domain.Run
	pages       map[string][]domain.PageRecord
	validations map[string][]domain.LinkValidation
	graphs      map[string]*domain.GraphSnapshot
	sources     map[string][]domain.PageSource
	reports     map[string]*domain.ChangeReport

	previous *domain.Run

	failInsertPagesOnce bool
	insertPagesCalls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:        map[string]*domain.Run{},
		pages:       map[string][]domain.PageRecord{},
		validations: map[string][]domain.LinkValidation{},
		graphs:      map[string]*domain.GraphSnapshot{},
		sources:     map[string][]domain.PageSource{},
		reports:     map[string]*domain.ChangeReport{},
	}
}

func (s *fakeStore) CreateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *fakeStore) UpdateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *fakeStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *fakeStore) ListRuns(context.Context, storage.ListParams) ([]*domain.Run, error) {
	return nil, nil
}

func (s *fakeStore) DeleteRun(context.Context, string) error { return nil }

func (s *fakeStore) PreviousCompletedRun(context.Context, string, time.Time, string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous == nil {
		return nil, storage.ErrNoPreviousRun
	}
	copied := *s.previous
	return &copied, nil
}

func (s *fakeStore) DeleteRunsOlderThan(context.Context, time.Time) (int, error) { return 0, nil }

func (s *fakeStore) InsertPages(_ context.Context, pages []domain.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertPagesCalls++
	if s.failInsertPagesOnce {
		s.failInsertPagesOnce = false
		return fmt.Errorf("transient insert failure")
	}
	for _, page := range pages {
		s.pages[page.RunID] = append(s.pages[page.RunID], page)
	}
	return nil
}

func (s *fakeStore) GetPages(_ context.Context, runID string) ([]domain.PageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[runID], nil
}

func (s *fakeStore) GetPage(context.Context, string, string) (*domain.PageRecord, error) {
	return nil, storage.ErrPageNotFound
}

func (s *fakeStore) InsertLinkValidations(_ context.Context, validations []domain.LinkValidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, validation := range validations {
		s.validations[validation.RunID] = append(s.validations[validation.RunID], validation)
	}
	return nil
}

func (s *fakeStore) GetLinkValidations(_ context.Context, runID string) ([]domain.LinkValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validations[runID], nil
}

func (s *fakeStore) GetBrokenLinkDetails(context.Context, string) ([]domain.BrokenLinkDetail, error) {
	return nil, nil
}

func (s *fakeStore) SaveGraph(_ context.Context, snapshot *domain.GraphSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[snapshot.RunID] = snapshot
	return nil
}

func (s *fakeStore) GetGraph(_ context.Context, runID string) (*domain.GraphSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.graphs[runID]
	if !ok {
		return nil, storage.ErrGraphNotFound
	}
	return snapshot, nil
}

func (s *fakeStore) InsertPageSources(_ context.Context, sources []domain.PageSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, source := range sources {
		s.sources[source.RunID] = append(s.sources[source.RunID], source)
	}
	return nil
}

func (s *fakeStore) ResolvePageSource(context.Context, string, string) (*domain.SourceLookup, error) {
	return nil, storage.ErrSourceNotFound
}

func (s *fakeStore) SaveChangeReport(_ context.Context, report *domain.ChangeReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.CurrentRunID] = report
	return nil
}

func (s *fakeStore) GetChangeReport(_ context.Context, runID string) (*domain.ChangeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[runID]
	if !ok {
		return nil, storage.ErrChangeReportNotFound
	}
	return report, nil
}

func (s *fakeStore) BuildExport(context.Context, string) (*domain.ExportDocument, error) {
	return nil, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

// progressRecorder captures reported milestones.
type progressRecorder struct {
	mu       sync.Mutex
	percents []int
	messages []string
}

func (p *progressRecorder) record(_ context.Context, percent int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percents = append(p.percents, percent)
	p.messages = append(p.messages, message)
}

func (p *progressRecorder) last() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.percents) == 0 {
		return 0
	}
	return p.percents[len(p.percents)-1]
}

// contentBody pads a page with enough prose to classify as content.
func contentBody(title, links string) string {
	words := strings.Repeat("substantive analytical reporting about infrastructure ", 15)
	return fmt.Sprintf(
		"<html><head><title>%s</title></head><body><main><p>%s</p>%s</main></body></html>",
		title, words, links,
	)
}

func fastConfig() executor.Config {
	return executor.Config{
		Fetcher: fetcher.Config{
			RequestTimeout: 2 * time.Second,
			MaxAttempts:    2,
			BackoffBase:    time.Millisecond,
			BackoffCap:     2 * time.Millisecond,
			JitterMin:      time.Millisecond,
			JitterMax:      2 * time.Millisecond,
		},
		Crawler: crawler.Config{
			SequentialGap:  time.Millisecond,
			BatchSleep:     time.Millisecond,
			SlowBatchSleep: time.Millisecond,
		},
		Validator: validator.Config{
			RequestTimeout: 2 * time.Second,
			RetryDelayBase: time.Millisecond,
			RetryDelayCap:  2 * time.Millisecond,
			CheckJitterMin: time.Millisecond,
			CheckJitterMax: 2 * time.Millisecond,
			BatchSleepMin:  time.Millisecond,
			BatchSleepMax:  2 * time.Millisecond,
		},
	}
}

func seedRun(t *testing.T, store *fakeStore, startURL string) *domain.Run {
	t.Helper()

	run := &domain.Run{
		ID:            "run-1",
		ApplicationID: "app-1",
		StartURL:      startURL,
		Status:        domain.RunStatusPending,
		CreatedAt:     time.Now().UTC(),
		Policy: domain.Policy{
			StartURL:           startURL,
			MaxDepth:           3,
			MaxPages:           10,
			Concurrency:        2,
			ExtractStaticLinks: true,
		},
	}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func TestExecuteCompletesRun(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		links := fmt.Sprintf(`<a href="%s/about">About</a><a href="%s/missing">Missing</a>`,
			server.URL, server.URL)
		fmt.Fprint(w, contentBody("Home", links))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, contentBody("About", ""))
	})

	store := newFakeStore()
	run := seedRun(t, store, server.URL)

	exec := executor.New(store, notify.NewNoop(), logger.NewNoOp(), fastConfig())
	progress := &progressRecorder{}

	err := exec.Execute(context.Background(), run.ID, executor.Hooks{Progress: progress.record})
	require.NoError(t, err)

	final, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, 2, final.PagesAnalyzed)
	assert.Equal(t, 2, final.LinksFound)
	assert.Equal(t, 1, final.BrokenLinks)
	assert.Equal(t, 90, final.TechnicalScore)

	// One validation from the crawl (the 404), one from the validator for
	// the healthy /about link. The crawl-validated URL is not re-checked.
	assert.Len(t, store.validations[run.ID], 2)

	// Only the start page has children, so only it retains HTML.
	require.Len(t, store.sources[run.ID], 1)
	assert.Contains(t, store.sources[run.ID][0].HTML, "About")

	require.NotNil(t, store.graphs[run.ID])
	assert.Equal(t, 3, store.graphs[run.ID].Statistics.TotalPages)

	// First run for this URL: sentinel report with no previous run.
	require.NotNil(t, store.reports[run.ID])
	assert.Empty(t, store.reports[run.ID].PreviousRunID)

	assert.Equal(t, 100, progress.last())
}

func TestExecuteDetectsChangesAgainstPreviousRun(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, contentBody("Home", ""))
	})

	store := newFakeStore()
	run := seedRun(t, store, server.URL)

	store.previous = &domain.Run{ID: "run-0", StartURL: server.URL, Status: domain.RunStatusCompleted}
	store.pages["run-0"] = []domain.PageRecord{
		{RunID: "run-0", URL: server.URL, Title: "Old Home", PageType: domain.PageTypeContent},
		{RunID: "run-0", URL: server.URL + "/gone", Title: "Gone", PageType: domain.PageTypeContent},
	}

	exec := executor.New(store, notify.NewNoop(), logger.NewNoOp(), fastConfig())
	require.NoError(t, exec.Execute(context.Background(), run.ID, executor.Hooks{}))

	report := store.reports[run.ID]
	require.NotNil(t, report)
	assert.Equal(t, "run-0", report.PreviousRunID)
	assert.Len(t, report.RemovedPages, 1)
	assert.Len(t, report.ModifiedPages, 1)
}

func TestExecuteCancellationFailsRunButKeepsPartials(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		links := fmt.Sprintf(`<a href="%s/a">A</a><a href="%s/b">B</a>`, server.URL, server.URL)
		fmt.Fprint(w, contentBody("Home", links))
	})

	store := newFakeStore()
	run := seedRun(t, store, server.URL)

	var calls int
	cancelAfterFirst := func(context.Context) bool {
		calls++
		return calls > 1
	}

	exec := executor.New(store, notify.NewNoop(), logger.NewNoOp(), fastConfig())
	err := exec.Execute(context.Background(), run.ID, executor.Hooks{CancelRequested: cancelAfterFirst})
	require.Error(t, err)

	final, getErr := store.GetRun(context.Background(), run.ID)
	require.NoError(t, getErr)

	assert.Equal(t, domain.RunStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "cancel")
	assert.NotNil(t, final.CompletedAt)

	// The page fetched before the cancellation check is still persisted.
	assert.Len(t, store.pages[run.ID], 1)
	assert.Equal(t, 1, final.PagesAnalyzed)
}

func TestExecuteSkipsTerminalRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	run := &domain.Run{
		ID:       "run-done",
		StartURL: "https://example.com",
		Status:   domain.RunStatusCompleted,
	}
	require.NoError(t, store.CreateRun(context.Background(), run))

	exec := executor.New(store, notify.NewNoop(), logger.NewNoOp(), fastConfig())
	require.NoError(t, exec.Execute(context.Background(), run.ID, executor.Hooks{}))

	final, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Nil(t, final.StartedAt)
}

func TestExecuteRetriesPersistenceOnce(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, contentBody("Home", ""))
	})

	store := newFakeStore()
	store.failInsertPagesOnce = true
	run := seedRun(t, store, server.URL)

	exec := executor.New(store, notify.NewNoop(), logger.NewNoOp(), fastConfig())
	require.NoError(t, exec.Execute(context.Background(), run.ID, executor.Hooks{}))

	assert.Equal(t, 2, store.insertPagesCalls)
	assert.Len(t, store.pages[run.ID], 1)

	final, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
}

func TestExecuteNotifiesOnCompletion(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, contentBody("Home", ""))
	})

	store := newFakeStore()
	run := seedRun(t, store, server.URL)

	notifier := &captureNotifier{}
	exec := executor.New(store, notifier, logger.NewNoOp(), fastConfig())
	require.NoError(t, exec.Execute(context.Background(), run.ID, executor.Hooks{}))

	require.Len(t, notifier.events, 1)
	assert.Equal(t, run.ID, notifier.events[0].RunID)
	assert.Equal(t, domain.RunStatusCompleted, notifier.events[0].Status)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *captureNotifier) RunFinished(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}
