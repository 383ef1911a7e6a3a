package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/storage"
	"github.com/jonesrussell/sitewatch/internal/taskqueue"
)

const (
	defaultLimit  = 50
	defaultOffset = 0
)

// TaskDispatcher is the queue surface the API needs: dispatching runs and
// reading back their live signals.
type TaskDispatcher interface {
	Enqueue(ctx context.Context, runID string) (string, error)
	GetProgress(ctx context.Context, runID string) (*taskqueue.Progress, error)
	RequestCancel(ctx context.Context, runID string) error
	Ping(ctx context.Context) error
}

// RunsHandler handles run-related HTTP requests.
type RunsHandler struct {
	store      storage.Store
	dispatcher TaskDispatcher
	log        logger.Interface
}

// NewRunsHandler creates a runs handler.
func NewRunsHandler(store storage.Store, dispatcher TaskDispatcher, log logger.Interface) *RunsHandler {
	return &RunsHandler{store: store, dispatcher: dispatcher, log: log}
}

// CreateRunRequest is the body of POST /api/v1/runs.
type CreateRunRequest struct {
	ApplicationID string        `json:"application_id"`
	Policy        domain.Policy `json:"policy"`
}

// Create handles POST /api/v1/runs: persist a pending run and dispatch it.
func (h *RunsHandler) Create(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	req.Policy.Normalize()
	if err := req.Policy.Validate(); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	run := &domain.Run{
		ID:            uuid.NewString(),
		ApplicationID: req.ApplicationID,
		StartURL:      req.Policy.StartURL,
		Status:        domain.RunStatusPending,
		Policy:        req.Policy,
		CreatedAt:     time.Now().UTC(),
	}

	ctx := c.Request.Context()
	if err := h.store.CreateRun(ctx, run); err != nil {
		h.log.Error("create run", "error", err)
		respondInternalError(c, "failed to create run")
		return
	}

	taskID, err := h.dispatcher.Enqueue(ctx, run.ID)
	if err != nil {
		h.log.Error("enqueue run", "run_id", run.ID, "error", err)
		respondInternalError(c, "failed to enqueue run")
		return
	}

	run.TaskID = &taskID
	if err := h.store.UpdateRun(ctx, run); err != nil {
		// The run is already dispatched; losing the task id is tolerable.
		h.log.Warn("record task id", "run_id", run.ID, "error", err)
	}

	c.JSON(http.StatusAccepted, run)
}

// List handles GET /api/v1/runs.
func (h *RunsHandler) List(c *gin.Context) {
	limit, offset := parseLimitOffset(c, defaultLimit, defaultOffset)

	runs, err := h.store.ListRuns(c.Request.Context(), storage.ListParams{
		ApplicationID: c.Query("application_id"),
		StartURL:      c.Query("start_url"),
		Status:        domain.RunStatus(c.Query("status")),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		h.log.Error("list runs", "error", err)
		respondInternalError(c, "failed to list runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// Get handles GET /api/v1/runs/:id. Non-terminal runs carry their latest
// progress report.
func (h *RunsHandler) Get(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	response := gin.H{"run": run}
	if !run.Status.IsTerminal() {
		if progress, err := h.dispatcher.GetProgress(c.Request.Context(), run.ID); err == nil && progress != nil {
			response["progress"] = progress
		}
	}

	c.JSON(http.StatusOK, response)
}

// Result handles GET /api/v1/runs/:id/result: the run with its pages,
// validations, broken-link drill-down, and change report.
func (h *RunsHandler) Result(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	pages, err := h.store.GetPages(ctx, run.ID)
	if err != nil {
		h.log.Error("load pages", "run_id", run.ID, "error", err)
		respondInternalError(c, "failed to load pages")
		return
	}

	validations, err := h.store.GetLinkValidations(ctx, run.ID)
	if err != nil {
		h.log.Error("load validations", "run_id", run.ID, "error", err)
		respondInternalError(c, "failed to load link validations")
		return
	}

	broken, err := h.store.GetBrokenLinkDetails(ctx, run.ID)
	if err != nil {
		h.log.Error("load broken links", "run_id", run.ID, "error", err)
		respondInternalError(c, "failed to load broken link details")
		return
	}

	response := gin.H{
		"run":              run,
		"pages":            pages,
		"link_validations": validations,
		"broken_links":     broken,
	}

	if report, reportErr := h.store.GetChangeReport(ctx, run.ID); reportErr == nil {
		response["change_report"] = report
	} else if !errors.Is(reportErr, storage.ErrChangeReportNotFound) {
		h.log.Error("load change report", "run_id", run.ID, "error", reportErr)
		respondInternalError(c, "failed to load change report")
		return
	}

	c.JSON(http.StatusOK, response)
}

// Source handles GET /api/v1/runs/:id/source?url=... and returns the HTML
// for the URL, resolved through stored ancestors when needed.
func (h *RunsHandler) Source(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		respondBadRequest(c, "url query parameter is required")
		return
	}

	lookup, err := h.store.ResolvePageSource(c.Request.Context(), c.Param("id"), rawURL)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrSourceNotFound):
			respondNotFound(c, "page source")
		case errors.Is(err, storage.ErrRunNotFound):
			respondNotFound(c, "run")
		default:
			h.log.Error("resolve page source", "url", rawURL, "error", err)
			respondInternalError(c, "failed to resolve page source")
		}
		return
	}

	c.JSON(http.StatusOK, lookup)
}

// Graph handles GET /api/v1/runs/:id/graph.
func (h *RunsHandler) Graph(c *gin.Context) {
	snapshot, err := h.store.GetGraph(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrGraphNotFound), errors.Is(err, storage.ErrRunNotFound):
			respondNotFound(c, "graph")
		default:
			h.log.Error("load graph", "run_id", c.Param("id"), "error", err)
			respondInternalError(c, "failed to load graph")
		}
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// Export handles GET /api/v1/runs/:id/export.
func (h *RunsHandler) Export(c *gin.Context) {
	doc, err := h.store.BuildExport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			respondNotFound(c, "run")
			return
		}
		h.log.Error("build export", "run_id", c.Param("id"), "error", err)
		respondInternalError(c, "failed to build export")
		return
	}

	c.JSON(http.StatusOK, doc)
}

// Delete handles DELETE /api/v1/runs/:id. A run still in flight is flagged
// for cancellation before its records are removed.
func (h *RunsHandler) Delete(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if !run.Status.IsTerminal() {
		if err := h.dispatcher.RequestCancel(ctx, run.ID); err != nil {
			h.log.Warn("request cancel", "run_id", run.ID, "error", err)
		}
	}

	if err := h.store.DeleteRun(ctx, run.ID); err != nil {
		h.log.Error("delete run", "run_id", run.ID, "error", err)
		respondInternalError(c, "failed to delete run")
		return
	}

	c.Status(http.StatusNoContent)
}

// loadRun fetches the run in the :id path param, writing the error response
// on failure.
func (h *RunsHandler) loadRun(c *gin.Context) (*domain.Run, bool) {
	id := c.Param("id")
	if id == "" {
		respondBadRequest(c, "run id is required")
		return nil, false
	}

	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			respondNotFound(c, "run")
		} else {
			h.log.Error("load run", "run_id", id, "error", err)
			respondInternalError(c, "failed to load run")
		}
		return nil, false
	}

	return run, true
}
