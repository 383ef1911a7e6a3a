// Package notify delivers run-completion notifications. Delivery is best
// effort: a failed webhook never fails the run, it only logs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/logger"
)

// defaultTimeout bounds a single webhook delivery.
const defaultTimeout = 10 * time.Second

// Config holds notification settings.
type Config struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// Event is the payload delivered when a run finishes.
type Event struct {
	RunID          string           `json:"run_id"`
	StartURL       string           `json:"start_url"`
	Status         domain.RunStatus `json:"status"`
	PagesAnalyzed  int              `json:"pages_analyzed"`
	LinksFound     int              `json:"links_found"`
	BrokenLinks    int              `json:"broken_links"`
	TechnicalScore int              `json:"technical_score"`
	Error          string           `json:"error,omitempty"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// Notifier announces finished runs.
type Notifier interface {
	RunFinished(ctx context.Context, event Event)
}

// NoopNotifier discards every event.
type NoopNotifier struct{}

// NewNoop creates a notifier that does nothing.
func NewNoop() *NoopNotifier { return &NoopNotifier{} }

func (*NoopNotifier) RunFinished(context.Context, Event) {}

// WebhookNotifier POSTs events as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    logger.Interface
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, log logger.Interface) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		log:    log.WithComponent("notify"),
	}
}

// FromConfig returns a webhook notifier when a URL is configured, a noop
// notifier otherwise.
func FromConfig(cfg Config, log logger.Interface) Notifier {
	if cfg.WebhookURL == "" {
		return NewNoop()
	}
	return NewWebhook(cfg.WebhookURL, log)
}

// RunFinished delivers the event, logging any failure.
func (n *WebhookNotifier) RunFinished(ctx context.Context, event Event) {
	if err := n.deliver(ctx, event); err != nil {
		n.log.Warn("webhook delivery failed", "run_id", event.RunID, "error", err)
		return
	}
	n.log.Debug("webhook delivered", "run_id", event.RunID, "status", event.Status)
}

func (n *WebhookNotifier) deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	return nil
}
