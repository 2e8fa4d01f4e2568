package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/librarease/catalog/internal/auth"
	"github.com/librarease/catalog/internal/cache"
	"github.com/librarease/catalog/internal/config"
	"github.com/librarease/catalog/internal/database"
	"github.com/librarease/catalog/internal/filestorage"
	"github.com/librarease/catalog/internal/firebase"
	"github.com/librarease/catalog/internal/imaging"
	"github.com/librarease/catalog/internal/queue"
	"github.com/librarease/catalog/internal/telemetry"
	"github.com/librarease/catalog/internal/usecase"
)

// Service is the catalog core as seen by the HTTP handlers.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string

	ListBooks(context.Context, usecase.ListBooksOption) ([]usecase.Book, int, error)
	TopRatedBooks(context.Context) ([]usecase.Book, error)
	GetBookByID(context.Context, uuid.UUID) (usecase.Book, error)
	CreateBook(context.Context, usecase.BookInput, *usecase.Upload) (usecase.Book, error)
	UpdateBook(context.Context, uuid.UUID, usecase.BookPatch, *usecase.Upload) (usecase.Book, error)
	DeleteBook(context.Context, uuid.UUID) error
	RateBook(context.Context, uuid.UUID, int) (usecase.Book, error)
}

type Server struct {
	server    Service
	verifier  usecase.TokenVerifier
	validator *validator.Validate
	logger    *slog.Logger
	// uploadDir is served under config.UPLOADS_ROUTE when assets live on
	// local disk.
	uploadDir string
}

func NewServer(sv Service, verifier usecase.TokenVerifier, logger *slog.Logger, uploadDir string) *Server {
	return &Server{
		server:    sv,
		verifier:  verifier,
		validator: validator.New(),
		logger:    logger,
		uploadDir: uploadDir,
	}
}

// App owns the HTTP server and everything it was wired with.
type App struct {
	http    *http.Server
	logger  *slog.Logger
	closers []func(context.Context) error
}

// NewApp wires the API from the environment. When wiring fails part way,
// whatever was already opened is released before the error is returned.
func NewApp(logger *slog.Logger) (_ *App, err error) {
	ctx := context.Background()
	app := &App{logger: logger}
	defer func() {
		if err != nil {
			app.abandon(ctx, err)
		}
	}()

	shutdown, err := telemetry.Setup(ctx, "api")
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, shutdown)

	gormDB, err := database.Open(logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func(context.Context) error {
		db, err := gormDB.DB()
		if err != nil {
			return err
		}
		return db.Close()
	})
	repo, err := database.New(gormDB)
	if err != nil {
		return nil, err
	}

	stagingDir := os.Getenv(config.ENV_KEY_STAGING_DIR)
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "catalog-staging")
	}
	stager, err := imaging.NewStager(stagingDir)
	if err != nil {
		return nil, err
	}

	fsp, err := filestorage.FromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("create file storage: %w", err)
	}
	var uploadDir string
	if local, ok := fsp.(*filestorage.LocalStorage); ok {
		uploadDir = local.Dir()
	}

	verifier, err := newVerifier(ctx)
	if err != nil {
		return nil, err
	}

	opts := []usecase.Option{usecase.WithLogger(logger)}
	if os.Getenv(config.ENV_KEY_REDIS_HOST) != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     queue.RedisAddr(),
			Password: os.Getenv(config.ENV_KEY_REDIS_PASSWORD),
		})
		rc := cache.NewRedisCache(rdb, cache.DefaultTTL, logger)
		app.closers = append(app.closers, func(context.Context) error { return rc.Close() })
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			return nil, fmt.Errorf("instrument redis: %w", err)
		}
		qc := queue.NewClient(queue.RedisAddr(), os.Getenv(config.ENV_KEY_REDIS_PASSWORD), logger)
		app.closers = append(app.closers, func(context.Context) error { return qc.Close() })
		opts = append(opts, usecase.WithCache(rc), usecase.WithOrphanReporter(qc))
	} else {
		logger.Warn("REDIS_HOST not set, running without cache and orphan queue")
	}

	uc := usecase.New(repo, stager, imaging.NewWebPConverter(), fsp, opts...)

	port, _ := strconv.Atoi(os.Getenv(config.ENV_KEY_PORT))
	if port == 0 {
		port = 8080
	}

	s := NewServer(uc, verifier, logger, uploadDir)
	app.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return app, nil
}

func (a *App) Addr() string {
	return a.http.Addr
}

func (a *App) ListenAndServe() error {
	if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server, then releases dependencies in reverse
// order of construction.
func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.http.Shutdown(ctx), a.release(ctx))
}

// release runs the closers in reverse order of construction, once.
func (a *App) release(ctx context.Context) error {
	errs := make([]error, 0, len(a.closers))
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) abandon(ctx context.Context, cause error) {
	if len(a.closers) == 0 {
		return
	}
	a.logger.WarnContext(ctx, "startup failed, releasing resources",
		slog.Int("resources", len(a.closers)),
		slog.String("err", cause.Error()),
	)
	if err := a.release(ctx); err != nil {
		a.logger.ErrorContext(ctx, "failed to release resources", slog.String("err", err.Error()))
	}
}

func newVerifier(ctx context.Context) (usecase.TokenVerifier, error) {
	switch p := os.Getenv(config.ENV_KEY_AUTH_PROVIDER); p {
	case "", config.AUTH_PROVIDER_JWT:
		secret := os.Getenv(config.ENV_KEY_JWT_SECRET)
		if secret == "" {
			return nil, fmt.Errorf("%s is required for jwt auth", config.ENV_KEY_JWT_SECRET)
		}
		return auth.NewJWTVerifier(secret), nil
	case config.AUTH_PROVIDER_FIREBASE:
		return firebase.New(ctx, os.Getenv(config.ENV_KEY_FIREBASE_SERVICE_ACCOUNT_KEY_PATH))
	default:
		return nil, fmt.Errorf("unknown auth provider %q", p)
	}
}
