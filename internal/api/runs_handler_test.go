package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/sitewatch/internal/api"
	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/storage"
	"github.com/jonesrussell/sitewatch/internal/taskqueue"
)

// fakeStore is an in-memory storage.Store for handler tests.
type fakeStore struct {
	runs        map[string]*domain.Run
	pages       map[string][]domain.PageRecord
	validations map[string][]domain.LinkValidation
	graphs      map[string]*domain.GraphSnapshot
	reports     map[string]*domain.ChangeReport
	lookups     map[string]*domain.SourceLookup
	deleted     []string
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:        map[string]*domain.Run{},
		pages:       map[string][]domain.PageRecord{},
		validations: map[string][]domain.LinkValidation{},
		graphs:      map[string]*domain.GraphSnapshot{},
		reports:     map[string]*domain.ChangeReport{},
		lookups:     map[string]*domain.SourceLookup{},
	}
}

func (s *fakeStore) CreateRun(_ context.Context, run *domain.Run) error {
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *fakeStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return s.CreateRun(ctx, run)
}

func (s *fakeStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *fakeStore) ListRuns(_ context.Context, params storage.ListParams) ([]*domain.Run, error) {
	var out []*domain.Run
	for _, run := range s.runs {
		if params.Status != "" && run.Status != params.Status {
			continue
		}
		copied := *run
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeStore) DeleteRun(_ context.Context, id string) error {
	delete(s.runs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) PreviousCompletedRun(context.Context, string, time.Time, string) (*domain.Run, error) {
	return nil, storage.ErrNoPreviousRun
}

func (s *fakeStore) DeleteRunsOlderThan(context.Context, time.Time) (int, error) { return 0, nil }

func (s *fakeStore) InsertPages(context.Context, []domain.PageRecord) error { return nil }

func (s *fakeStore) GetPages(_ context.Context, runID string) ([]domain.PageRecord, error) {
	return s.pages[runID], nil
}

func (s *fakeStore) GetPage(context.Context, string, string) (*domain.PageRecord, error) {
	return nil, storage.ErrPageNotFound
}

func (s *fakeStore) InsertLinkValidations(context.Context, []domain.LinkValidation) error { return nil }

func (s *fakeStore) GetLinkValidations(_ context.Context, runID string) ([]domain.LinkValidation, error) {
	return s.validations[runID], nil
}

func (s *fakeStore) GetBrokenLinkDetails(context.Context, string) ([]domain.BrokenLinkDetail, error) {
	return nil, nil
}

func (s *fakeStore) SaveGraph(context.Context, *domain.GraphSnapshot) error { return nil }

func (s *fakeStore) GetGraph(_ context.Context, runID string) (*domain.GraphSnapshot, error) {
	snapshot, ok := s.graphs[runID]
	if !ok {
		return nil, storage.ErrGraphNotFound
	}
	return snapshot, nil
}

func (s *fakeStore) InsertPageSources(context.Context, []domain.PageSource) error { return nil }

func (s *fakeStore) ResolvePageSource(_ context.Context, runID, url string) (*domain.SourceLookup, error) {
	lookup, ok := s.lookups[runID+"|"+url]
	if !ok {
		return nil, storage.ErrSourceNotFound
	}
	return lookup, nil
}

func (s *fakeStore) SaveChangeReport(context.Context, *domain.ChangeReport) error { return nil }

func (s *fakeStore) GetChangeReport(_ context.Context, runID string) (*domain.ChangeReport, error) {
	report, ok := s.reports[runID]
	if !ok {
		return nil, storage.ErrChangeReportNotFound
	}
	return report, nil
}

func (s *fakeStore) BuildExport(_ context.Context, runID string) (*domain.ExportDocument, error) {
	if _, ok := s.runs[runID]; !ok {
		return nil, storage.ErrRunNotFound
	}
	return &domain.ExportDocument{}, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }
func (s *fakeStore) Close() error               { return nil }

// fakeDispatcher records queue interactions.
type fakeDispatcher struct {
	enqueued   []string
	cancelled  []string
	progress   map[string]*taskqueue.Progress
	enqueueErr error
	pingErr    error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{progress: map[string]*taskqueue.Progress{}}
}

func (d *fakeDispatcher) Enqueue(_ context.Context, runID string) (string, error) {
	if d.enqueueErr != nil {
		return "", d.enqueueErr
	}
	d.enqueued = append(d.enqueued, runID)
	return "task-" + runID, nil
}

func (d *fakeDispatcher) GetProgress(_ context.Context, runID string) (*taskqueue.Progress, error) {
	return d.progress[runID], nil
}

func (d *fakeDispatcher) RequestCancel(_ context.Context, runID string) error {
	d.cancelled = append(d.cancelled, runID)
	return nil
}

func (d *fakeDispatcher) Ping(context.Context) error { return d.pingErr }

func newTestServer(store *fakeStore, dispatcher *fakeDispatcher, apiKey string) *api.Server {
	return api.NewServer(
		api.Config{Debug: true, APIKey: apiKey},
		store, dispatcher, logger.NewNoOp(),
	)
}

func doRequest(server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestCreateRunDispatchesTask(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dispatcher := newFakeDispatcher()
	server := newTestServer(store, dispatcher, "")

	resp := doRequest(server, http.MethodPost, "/api/v1/runs", api.CreateRunRequest{
		ApplicationID: "app-1",
		Policy:        domain.Policy{StartURL: "https://example.com", MaxDepth: 2},
	})
	require.Equal(t, http.StatusAccepted, resp.Code)

	var run domain.Run
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &run))

	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, "https://example.com", run.StartURL)
	require.NotNil(t, run.TaskID)
	assert.Equal(t, "task-"+run.ID, *run.TaskID)

	assert.Equal(t, []string{run.ID}, dispatcher.enqueued)
	_, ok := store.runs[run.ID]
	assert.True(t, ok)

	// Defaults applied by normalization.
	assert.Equal(t, domain.DefaultMaxPages, run.Policy.MaxPages)
}

func TestCreateRunRejectsInvalidPolicy(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeStore(), newFakeDispatcher(), "")

	resp := doRequest(server, http.MethodPost, "/api/v1/runs", api.CreateRunRequest{
		Policy: domain.Policy{StartURL: "ftp://example.com"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetRunIncludesProgressWhileRunning(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.runs["run-1"] = &domain.Run{ID: "run-1", Status: domain.RunStatusRunning}

	dispatcher := newFakeDispatcher()
	dispatcher.progress["run-1"] = &taskqueue.Progress{Percent: 45, Message: "crawling"}

	server := newTestServer(store, dispatcher, "")

	resp := doRequest(server, http.MethodGet, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Run      domain.Run          `json:"run"`
		Progress *taskqueue.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	assert.Equal(t, domain.RunStatusRunning, body.Run.Status)
	require.NotNil(t, body.Progress)
	assert.Equal(t, 45, body.Progress.Percent)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeStore(), newFakeDispatcher(), "")

	resp := doRequest(server, http.MethodGet, "/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestResultBundlesRecords(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.runs["run-1"] = &domain.Run{ID: "run-1", Status: domain.RunStatusCompleted}
	store.pages["run-1"] = []domain.PageRecord{{RunID: "run-1", URL: "https://example.com"}}
	store.validations["run-1"] = []domain.LinkValidation{
		{RunID: "run-1", URL: "https://example.com/a", Status: domain.LinkStatusValid},
	}
	store.reports["run-1"] = &domain.ChangeReport{CurrentRunID: "run-1"}

	server := newTestServer(store, newFakeDispatcher(), "")

	resp := doRequest(server, http.MethodGet, "/api/v1/runs/run-1/result", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))

	assert.Contains(t, body, "run")
	assert.Contains(t, body, "pages")
	assert.Contains(t, body, "link_validations")
	assert.Contains(t, body, "change_report")
}

func TestSourceRequiresURLParam(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeStore(), newFakeDispatcher(), "")

	resp := doRequest(server, http.MethodGet, "/api/v1/runs/run-1/source", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSourceResolvesThroughAncestors(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.lookups["run-1|https://example.com/leaf"] = &domain.SourceLookup{
		RequestedURL:     "https://example.com/leaf",
		ActualSourcePage: "https://example.com",
		HTML:             "<html></html>",
		HierarchyDepth:   1,
	}

	server := newTestServer(store, newFakeDispatcher(), "")

	resp := doRequest(server, http.MethodGet,
		"/api/v1/runs/run-1/source?url=https%3A%2F%2Fexample.com%2Fleaf", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var lookup domain.SourceLookup
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &lookup))
	assert.Equal(t, "https://example.com", lookup.ActualSourcePage)
	assert.Equal(t, 1, lookup.HierarchyDepth)
}

func TestDeleteCancelsRunningRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.runs["run-1"] = &domain.Run{ID: "run-1", Status: domain.RunStatusRunning}
	dispatcher := newFakeDispatcher()

	server := newTestServer(store, dispatcher, "")

	resp := doRequest(server, http.MethodDelete, "/api/v1/runs/run-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, []string{"run-1"}, dispatcher.cancelled)
	assert.Equal(t, []string{"run-1"}, store.deleted)
}

func TestDeleteCompletedRunSkipsCancel(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.runs["run-1"] = &domain.Run{ID: "run-1", Status: domain.RunStatusCompleted}
	dispatcher := newFakeDispatcher()

	server := newTestServer(store, dispatcher, "")

	resp := doRequest(server, http.MethodDelete, "/api/v1/runs/run-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, dispatcher.cancelled)
}

func TestHealthReportsDegradedDependencies(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dispatcher := newFakeDispatcher()
	server := newTestServer(store, dispatcher, "")

	resp := doRequest(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	store.pingErr = errors.New("connection refused")
	resp = doRequest(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "connection refused")
}

func TestAPIKeyGuardsRunRoutes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.runs["run-1"] = &domain.Run{ID: "run-1", Status: domain.RunStatusCompleted}
	server := newTestServer(store, newFakeDispatcher(), "secret")

	resp := doRequest(server, http.MethodGet, "/api/v1/runs/run-1", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil)
	req.Header.Set("X-Api-Key", "secret")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// Health stays open.
	resp = doRequest(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.runs["run-1"] = &domain.Run{ID: "run-1", Status: domain.RunStatusCompleted}
	store.runs["run-2"] = &domain.Run{ID: "run-2", Status: domain.RunStatusFailed}

	server := newTestServer(store, newFakeDispatcher(), "")

	resp := doRequest(server, http.MethodGet,
		fmt.Sprintf("/api/v1/runs?status=%s", domain.RunStatusCompleted), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Runs  []domain.Run `json:"runs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "run-1", body.Runs[0].ID)
}
