package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Progress is the latest reported state of a running crawl.
type Progress struct {
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportProgress records a run's current phase for API polling.
func (q *Queue) ReportProgress(ctx context.Context, runID string, percent int, message string) error {
	key := q.client.progressKey(runID)

	pipe := q.client.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"percent":    percent,
		"message":    message,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, signalTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("report progress for run %s: %w", runID, err)
	}

	return nil
}

// GetProgress returns the last reported progress, or nil when none exists.
func (q *Queue) GetProgress(ctx context.Context, runID string) (*Progress, error) {
	values, err := q.client.rdb.HGetAll(ctx, q.client.progressKey(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress for run %s: %w", runID, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	progress := &Progress{Message: values["message"]}
	if percent, parseErr := strconv.Atoi(values["percent"]); parseErr == nil {
		progress.Percent = percent
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, values["updated_at"]); parseErr == nil {
		progress.UpdatedAt = ts
	}

	return progress, nil
}

// RequestCancel flags a run so its worker stops at the next checkpoint.
func (q *Queue) RequestCancel(ctx context.Context, runID string) error {
	key := q.client.cancelKey(runID)
	if err := q.client.rdb.Set(ctx, key, "1", signalTTL).Err(); err != nil {
		return fmt.Errorf("request cancel for run %s: %w", runID, err)
	}
	return nil
}

// CancelRequested reports whether a run has been flagged for cancellation.
// Redis errors read as "not cancelled" so a flaky connection cannot abort
// otherwise healthy runs.
func (q *Queue) CancelRequested(ctx context.Context, runID string) bool {
	n, err := q.client.rdb.Exists(ctx, q.client.cancelKey(runID)).Result()
	if err != nil {
		q.log.Warn("check cancel flag", "run_id", runID, "error", err)
		return false
	}
	return n > 0
}

// ClearSignals removes a run's progress and cancel keys after it finishes.
func (q *Queue) ClearSignals(ctx context.Context, runID string) {
	keys := []string{q.client.progressKey(runID), q.client.cancelKey(runID)}
	if err := q.client.rdb.Del(ctx, keys...).Err(); err != nil {
		q.log.Warn("clear run signals", "run_id", runID, "error", err)
	}
}
