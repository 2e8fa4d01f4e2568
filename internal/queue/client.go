package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Client wraps asynq.Client for enqueuing tasks
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient creates a new queue client
func NewClient(redisAddr string, redisPassword string, logger *slog.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
	})

	return &Client{
		client: client,
		logger: logger,
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueAssetCleanup schedules removal of an asset the request path could
// not delete. Cleanup for the same asset is only queued once at a time.
func (c *Client) EnqueueAssetCleanup(ctx context.Context, name, reason string) error {
	payload, err := json.Marshal(AssetRemovePayload{Asset: name, Reason: reason})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeAssetRemove, payload,
		asynq.TaskID(TypeAssetRemove+":"+name),
		asynq.Queue(QueueLow),
		asynq.MaxRetry(10),
	)

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.InfoContext(ctx, "enqueued task",
		slog.String("id", info.ID),
		slog.String("queue", info.Queue),
		slog.String("type", TypeAssetRemove),
	)
	return nil
}
