package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"

	"github.com/librarease/catalog/internal/config"
	"github.com/librarease/catalog/internal/database"
	"github.com/librarease/catalog/internal/filestorage"
	"github.com/librarease/catalog/internal/queue/handlers"
	"github.com/librarease/catalog/internal/telemetry"
	"github.com/librarease/catalog/internal/usecase"
)

// Worker processes asset cleanup tasks.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	repo     usecase.Repository
	shutdown telemetry.Shutdown
	logger   *slog.Logger
}

// NewWorker creates a fully configured worker with all dependencies
func NewWorker(logger *slog.Logger) (*Worker, error) {
	ctx := context.Background()
	logger.Info("Initializing worker dependencies...")

	shutdown, err := telemetry.Setup(ctx, "worker")
	if err != nil {
		return nil, err
	}

	gormDB, err := database.Open(logger)
	if err != nil {
		return nil, err
	}
	repo, err := database.New(gormDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	fsp, err := filestorage.FromEnv(ctx)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to create file storage: %w", err)
	}

	// workers never take uploads
	uc := usecase.New(repo, nil, nil, fsp, usecase.WithLogger(logger))

	workerConcurrency := 10
	if n, err := strconv.Atoi(os.Getenv(config.ENV_KEY_WORKER_CONCURRENCY)); err == nil && n > 0 {
		workerConcurrency = n
	}

	server := asynq.NewServer(
		redisOpt(),
		asynq.Config{
			Concurrency: workerConcurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	h := handlers.NewHandlers(uc, OrphanGrace(), logger)

	// Register task handlers - one line per task type
	mux.HandleFunc(TypeAssetRemove, h.HandleRemoveAsset)
	mux.HandleFunc(TypeAssetSweep, h.HandleSweepAssets)

	logger.Info("Worker registered handlers",
		slog.Any("types", []string{TypeAssetRemove, TypeAssetSweep}))

	return &Worker{
		server:   server,
		mux:      mux,
		repo:     repo,
		shutdown: shutdown,
		logger:   logger,
	}, nil
}

// Start starts the worker server
func (w *Worker) Start() error {
	w.logger.Info("Worker started successfully")
	return w.server.Start(w.mux)
}

// Stop stops the worker server gracefully
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.server.Shutdown()

	if err := w.repo.Close(); err != nil {
		w.logger.Error("Error closing database", slog.String("err", err.Error()))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.shutdown(ctx); err != nil {
		w.logger.Error("Error flushing telemetry", slog.String("err", err.Error()))
	}
}

// Scheduler enqueues the periodic orphan sweep.
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s := asynq.NewScheduler(redisOpt(), &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("Failed to enqueue scheduled task", slog.String("err", err.Error()))
				return
			}
			logger.Info("Enqueued scheduled task",
				slog.String("id", info.ID),
				slog.String("type", info.Type))
		},
	})

	entryID, err := s.Register(SweepCronSpec, asynq.NewTask(TypeAssetSweep, nil), asynq.Queue(QueueLow))
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", TypeAssetSweep, err)
	}
	logger.Info("Scheduler registered task",
		slog.String("entry_id", entryID),
		slog.String("type", TypeAssetSweep),
		slog.String("spec", SweepCronSpec))

	return &Scheduler{scheduler: s, logger: logger}, nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	s.scheduler.Shutdown()
}

// OrphanGrace is how long an unreferenced asset is left alone before a
// sweep may remove it. Uploads in flight are younger than this.
func OrphanGrace() time.Duration {
	minutes := config.DEFAULT_ORPHAN_GRACE_MINUTES
	if n, err := strconv.Atoi(os.Getenv(config.ENV_KEY_ORPHAN_GRACE_MINUTES)); err == nil && n > 0 {
		minutes = n
	}
	return time.Duration(minutes) * time.Minute
}

// RedisAddr joins REDIS_HOST and REDIS_PORT.
func RedisAddr() string {
	return fmt.Sprintf("%s:%s",
		os.Getenv(config.ENV_KEY_REDIS_HOST),
		os.Getenv(config.ENV_KEY_REDIS_PORT),
	)
}

func redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     RedisAddr(),
		Password: os.Getenv(config.ENV_KEY_REDIS_PASSWORD),
	}
}
