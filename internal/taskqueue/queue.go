package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/sitewatch/internal/logger"
)

const (
	// defaultGroup is the consumer group workers read from.
	defaultGroup = "sitewatch-workers"

	// defaultBlock is how long a read waits for new tasks.
	defaultBlock = 5 * time.Second

	// defaultClaimIdle is how long a pending task may sit unacked before
	// another consumer reclaims it.
	defaultClaimIdle = 5 * time.Minute
)

// RunTask is one crawl run waiting for a worker.
type RunTask struct {
	TaskID     string    `json:"task_id"`
	RunID      string    `json:"run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ConsumedTask pairs a task with the stream entry ID needed to ack it.
type ConsumedTask struct {
	RunTask
	StreamID string
}

// Queue produces and consumes run tasks over a Redis stream.
type Queue struct {
	client *Client
	group  string
	log    logger.Interface
}

// New creates a queue over an established client.
func New(client *Client, log logger.Interface) *Queue {
	return &Queue{
		client: client,
		group:  defaultGroup,
		log:    log.WithComponent("taskqueue"),
	}
}

// Enqueue publishes a run task and returns its task ID.
func (q *Queue) Enqueue(ctx context.Context, runID string) (string, error) {
	task := RunTask{
		TaskID:     uuid.NewString(),
		RunID:      runID,
		EnqueuedAt: time.Now().UTC(),
	}

	err := q.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.client.streamKey(),
		MaxLen: defaultMaxStreamLen,
		Approx: true,
		Values: encodeTask(task),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("enqueue run %s: %w", runID, err)
	}

	q.log.Info("run enqueued", "run_id", runID, "task_id", task.TaskID)

	return task.TaskID, nil
}

// EnsureGroup creates the consumer group, tolerating one that already exists.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	return q.client.createGroup(ctx, q.group)
}

// Read blocks for up to the default window and returns at most count tasks
// for the named consumer. Stale pending tasks from dead consumers are
// reclaimed first.
func (q *Queue) Read(ctx context.Context, consumer string, count int) ([]ConsumedTask, error) {
	if reclaimed, err := q.reclaim(ctx, consumer, count); err != nil {
		q.log.Warn("reclaim pending tasks", "error", err)
	} else if len(reclaimed) > 0 {
		return reclaimed, nil
	}

	streams, err := q.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.client.streamKey(), ">"},
		Count:    int64(count),
		Block:    defaultBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run tasks: %w", err)
	}

	return q.collect(streams), nil
}

// reclaim takes over tasks whose consumer went away without acking.
func (q *Queue) reclaim(ctx context.Context, consumer string, count int) ([]ConsumedTask, error) {
	messages, _, err := q.client.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.client.streamKey(),
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  defaultClaimIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	tasks := make([]ConsumedTask, 0, len(messages))
	for _, msg := range messages {
		task, decodeErr := decodeTask(msg.Values)
		if decodeErr != nil {
			q.log.Warn("drop malformed task", "stream_id", msg.ID, "error", decodeErr)
			q.ackID(ctx, msg.ID)
			continue
		}
		tasks = append(tasks, ConsumedTask{RunTask: task, StreamID: msg.ID})
	}

	return tasks, nil
}

// collect flattens stream read results into tasks, acking entries that fail
// to decode so they never wedge the group.
func (q *Queue) collect(streams []redis.XStream) []ConsumedTask {
	var tasks []ConsumedTask
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			task, err := decodeTask(msg.Values)
			if err != nil {
				q.log.Warn("drop malformed task", "stream_id", msg.ID, "error", err)
				q.ackID(context.Background(), msg.ID)
				continue
			}
			tasks = append(tasks, ConsumedTask{RunTask: task, StreamID: msg.ID})
		}
	}
	return tasks
}

// Ack marks a consumed task as done.
func (q *Queue) Ack(ctx context.Context, task ConsumedTask) error {
	if err := q.client.rdb.XAck(ctx, q.client.streamKey(), q.group, task.StreamID).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", task.TaskID, err)
	}
	return nil
}

func (q *Queue) ackID(ctx context.Context, streamID string) {
	if err := q.client.rdb.XAck(ctx, q.client.streamKey(), q.group, streamID).Err(); err != nil {
		q.log.Warn("ack stream entry", "stream_id", streamID, "error", err)
	}
}

// Ping checks the underlying connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx)
}

// encodeTask lays a task out as stream field-value pairs.
func encodeTask(task RunTask) map[string]any {
	return map[string]any{
		"task_id":     task.TaskID,
		"run_id":      task.RunID,
		"enqueued_at": task.EnqueuedAt.Format(time.RFC3339Nano),
	}
}

// decodeTask rebuilds a task from stream field-value pairs.
func decodeTask(values map[string]any) (RunTask, error) {
	taskID, ok := values["task_id"].(string)
	if !ok || taskID == "" {
		return RunTask{}, errors.New("task missing task_id")
	}

	runID, ok := values["run_id"].(string)
	if !ok || runID == "" {
		return RunTask{}, errors.New("task missing run_id")
	}

	task := RunTask{TaskID: taskID, RunID: runID}

	if raw, present := values["enqueued_at"].(string); present {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			task.EnqueuedAt = ts
		}
	}

	return task, nil
}
