package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

type assetRemovePayload struct {
	Asset  string `json:"asset"`
	Reason string `json:"reason"`
}

// HandleRemoveAsset deletes one orphaned asset. Referenced assets are kept.
func (h *Handlers) HandleRemoveAsset(ctx context.Context, task *asynq.Task) error {
	var payload assetRemovePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse task payload", slog.String("err", err.Error()))
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Asset == "" {
		return fmt.Errorf("empty asset name: %w", asynq.SkipRetry)
	}

	h.logger.InfoContext(ctx, "processing asset removal",
		slog.String("asset", payload.Asset),
		slog.String("reason", payload.Reason),
	)

	if err := h.janitor.RemoveOrphanAsset(ctx, payload.Asset); err != nil {
		h.logger.ErrorContext(ctx, "failed to remove asset",
			slog.String("asset", payload.Asset),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

// HandleSweepAssets removes every unreferenced asset older than the grace
// period.
func (h *Handlers) HandleSweepAssets(ctx context.Context, _ *asynq.Task) error {
	removed, err := h.janitor.SweepOrphanAssets(ctx, h.grace)
	if err != nil {
		h.logger.ErrorContext(ctx, "asset sweep incomplete",
			slog.Int("removed", removed),
			slog.String("err", err.Error()),
		)
		return err
	}
	h.logger.InfoContext(ctx, "asset sweep completed", slog.Int("removed", removed))
	return nil
}
