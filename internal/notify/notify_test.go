package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
	"github.com/jonesrussell/sitewatch/internal/notify"
)

func TestWebhookNotifierDeliversEvent(t *testing.T) {
	t.Parallel()

	var received notify.Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := notify.NewWebhook(server.URL, logger.NewNoOp())
	notifier.RunFinished(context.Background(), notify.Event{
		RunID:          "run-1",
		StartURL:       "https://example.com",
		Status:         domain.RunStatusCompleted,
		PagesAnalyzed:  3,
		LinksFound:     12,
		TechnicalScore: 90,
		FinishedAt:     time.Now().UTC(),
	})

	assert.Equal(t, "run-1", received.RunID)
	assert.Equal(t, domain.RunStatusCompleted, received.Status)
	assert.Equal(t, 3, received.PagesAnalyzed)
}

func TestWebhookNotifierSwallowsServerErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := notify.NewWebhook(server.URL, logger.NewNoOp())

	// Must not panic or propagate the failure.
	notifier.RunFinished(context.Background(), notify.Event{RunID: "run-1"})
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &notify.NoopNotifier{},
		notify.FromConfig(notify.Config{}, logger.NewNoOp()))
	assert.IsType(t, &notify.WebhookNotifier{},
		notify.FromConfig(notify.Config{WebhookURL: "https://hooks.example.com"}, logger.NewNoOp()))
}
