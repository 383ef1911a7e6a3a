package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/sitewatch/internal/storage"
)

// HealthHandler reports dependency health.
type HealthHandler struct {
	store      storage.Store
	dispatcher TaskDispatcher
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(store storage.Store, dispatcher TaskDispatcher) *HealthHandler {
	return &HealthHandler{store: store, dispatcher: dispatcher}
}

// Check handles GET /health. Degraded dependencies yield 503 with per-check
// detail.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{
		"database": "ok",
		"queue":    "ok",
	}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.dispatcher.Ping(ctx); err != nil {
		checks["queue"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
