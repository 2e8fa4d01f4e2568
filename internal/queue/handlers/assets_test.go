package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

type fakeJanitor struct {
	removed  []string
	grace    time.Duration
	removeFn func(string) error
	sweepN   int
	sweepErr error
}

func (f *fakeJanitor) RemoveOrphanAsset(_ context.Context, name string) error {
	if f.removeFn != nil {
		if err := f.removeFn(name); err != nil {
			return err
		}
	}
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeJanitor) SweepOrphanAssets(_ context.Context, grace time.Duration) (int, error) {
	f.grace = grace
	return f.sweepN, f.sweepErr
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleRemoveAsset(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		removeErr   error
		wantRemoved []string
		wantErr     bool
		wantSkip    bool
	}{
		{
			name:        "removes asset",
			payload:     `{"asset":"cover_1.webp","reason":"replaced"}`,
			wantRemoved: []string{"cover_1.webp"},
		},
		{
			name:     "bad payload",
			payload:  `{`,
			wantErr:  true,
			wantSkip: true,
		},
		{
			name:     "empty asset",
			payload:  `{"reason":"replaced"}`,
			wantErr:  true,
			wantSkip: true,
		},
		{
			name:      "storage failure is retried",
			payload:   `{"asset":"cover_1.webp"}`,
			removeErr: errors.New("bucket unavailable"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &fakeJanitor{removeFn: func(string) error { return tt.removeErr }}
			h := NewHandlers(j, time.Hour, discard())

			err := h.HandleRemoveAsset(context.Background(), asynq.NewTask("asset:remove", []byte(tt.payload)))

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantSkip, errors.Is(err, asynq.SkipRetry))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantRemoved, j.removed)
		})
	}
}

func TestHandleSweepAssets(t *testing.T) {
	t.Run("passes grace", func(t *testing.T) {
		j := &fakeJanitor{sweepN: 3}
		h := NewHandlers(j, 90*time.Minute, discard())

		assert.NoError(t, h.HandleSweepAssets(context.Background(), asynq.NewTask("asset:sweep", nil)))
		assert.Equal(t, 90*time.Minute, j.grace)
	})

	t.Run("propagates failure", func(t *testing.T) {
		j := &fakeJanitor{sweepErr: errors.New("list failed")}
		h := NewHandlers(j, time.Hour, discard())

		assert.Error(t, h.HandleSweepAssets(context.Background(), asynq.NewTask("asset:sweep", nil)))
	})
}
