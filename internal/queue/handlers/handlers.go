package handlers

import (
	"context"
	"log/slog"
	"time"
)

// AssetJanitor is the part of the usecase the worker drives.
type AssetJanitor interface {
	RemoveOrphanAsset(ctx context.Context, name string) error
	SweepOrphanAssets(ctx context.Context, grace time.Duration) (int, error)
}

// Handlers contains all queue task handlers
type Handlers struct {
	janitor AssetJanitor
	grace   time.Duration
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance. grace is how old an
// unreferenced asset must be before a sweep removes it.
func NewHandlers(janitor AssetJanitor, grace time.Duration, logger *slog.Logger) *Handlers {
	return &Handlers{
		janitor: janitor,
		grace:   grace,
		logger:  logger,
	}
}
