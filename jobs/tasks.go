package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMovementSnapshot materialises daily stock movement rows for every
	// (warehouse, item) pair the day's events touched.
	TaskMovementSnapshot = "movement:snapshot"
	// TaskIdempotencyCleanup prunes expired receipt idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// MovementSnapshotPayload names the day to snapshot. An empty day means
// yesterday, which is what the nightly cron wants.
type MovementSnapshotPayload struct {
	Day string `json:"day,omitempty"`
}

// NewMovementSnapshotTask constructs an Asynq task.
func NewMovementSnapshotTask(payload MovementSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMovementSnapshot, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task; it carries no payload.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// KeyCleaner is the slice of the idempotency store the worker needs.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupHandler builds the asynq handler for TaskIdempotencyCleanup.
func NewIdempotencyCleanupHandler(store KeyCleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return err
		}
		logger.Info("idempotency cleanup done", slog.Duration("retention", retention))
		return nil
	}
}

// SnapshotService is the slice of the movement engine the worker needs.
type SnapshotService interface {
	SnapshotDay(ctx context.Context, day time.Time) (int, error)
}

// NewMovementSnapshotHandler builds the asynq handler for TaskMovementSnapshot.
func NewMovementSnapshotHandler(service SnapshotService, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MovementSnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		day := time.Now().UTC().AddDate(0, 0, -1)
		if payload.Day != "" {
			parsed, err := time.Parse("2006-01-02", payload.Day)
			if err != nil {
				logger.Error("movement snapshot: bad day", slog.String("day", payload.Day))
				return asynq.SkipRetry
			}
			day = parsed
		}

		count, err := service.SnapshotDay(ctx, day)
		if err != nil {
			logger.Error("movement snapshot failed", slog.Any("error", err), slog.Time("day", day))
			return err
		}
		logger.Info("movement snapshot done", slog.Time("day", day), slog.Int("pairs", count))
		return nil
	}
}
