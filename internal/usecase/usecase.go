package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/librarease/catalog/internal/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func New(
	repo Repository,
	stager Stager,
	converter ImageConverter,
	fileStorageProvider FileStorageProvider,
	opts ...Option,
) Usecase {
	meter := otel.Meter("github.com/librarease/catalog/internal/usecase")
	ratings, _ := meter.Int64Counter("catalog.ratings.submitted")
	uploads, _ := meter.Int64Counter("catalog.uploads.processed")
	orphans, _ := meter.Int64Counter("catalog.assets.orphaned")

	u := Usecase{
		repo:                repo,
		stager:              stager,
		converter:           converter,
		fileStorageProvider: fileStorageProvider,
		cache:               noopCache{},
		logger:              slog.Default(),
		tracer:              otel.Tracer("github.com/librarease/catalog/internal/usecase"),
		ratingCounter:       ratings,
		uploadCounter:       uploads,
		orphanCounter:       orphans,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

type Option func(*Usecase)

func WithLogger(l *slog.Logger) Option {
	return func(u *Usecase) { u.logger = l }
}

func WithCache(c BookCache) Option {
	return func(u *Usecase) {
		if c != nil {
			u.cache = c
		}
	}
}

func WithOrphanReporter(r OrphanReporter) Option {
	return func(u *Usecase) { u.orphanReporter = r }
}

func WithClock(now func() time.Time) Option {
	return func(u *Usecase) { u.now = now }
}

// Repository is the record store. Mutations are conditional on the
// version read by the caller and fail with ErrVersionConflict when the
// row moved on, or ErrRecordNotFound when it is gone.
type Repository interface {
	Health() map[string]string
	Close() error

	ListBooks(context.Context, ListBooksOption) ([]Book, int, error)
	GetBookByID(context.Context, uuid.UUID) (Book, error)
	CreateBook(context.Context, Book) (Book, error)
	UpdateBook(context.Context, Book) (Book, error)
	UpdateBookRatings(ctx context.Context, id uuid.UUID, version int64, ratings []Rating, average float64) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID, version int64) error

	IsImageReferenced(ctx context.Context, name string) (bool, error)
	ListImageNames(ctx context.Context) ([]string, error)
}

// Stager writes an upload to local staging storage and re-validates it
// there, purging the file on rejection.
type Stager interface {
	Stage(ctx context.Context, c imaging.Candidate, body io.Reader) (string, error)
	Purge(path string) error
}

type ImageConverter interface {
	Convert(ctx context.Context, stagedPath, originalName string) (imaging.Converted, error)
}

// FileStorageProvider owns durable canonical assets. Remove of a missing
// asset succeeds.
type FileStorageProvider interface {
	Publish(ctx context.Context, localPath, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	GetPublicURL(ctx context.Context) (string, error)
	ListAssets(ctx context.Context) ([]StoredAsset, error)
}

type StoredAsset struct {
	Name       string
	ModifiedAt time.Time
}

// BookCache holds the best-rated listing. Every invalidation starts a new
// generation; GetTopRated reports the generation it saw, and SetTopRated
// stores a listing only if that generation is still current, so a listing
// read before a write can never be cached after it.
type BookCache interface {
	GetTopRated(ctx context.Context) (books []Book, generation int64, ok bool)
	SetTopRated(ctx context.Context, generation int64, books []Book)
	InvalidateTopRated(ctx context.Context)
}

// TokenVerifier resolves a bearer token to the id of the user it was
// issued to.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// OrphanReporter hands an unreferenced asset to out-of-band cleanup.
type OrphanReporter interface {
	EnqueueAssetCleanup(ctx context.Context, name, reason string) error
}

type Usecase struct {
	repo                Repository
	stager              Stager
	converter           ImageConverter
	fileStorageProvider FileStorageProvider
	cache               BookCache
	orphanReporter      OrphanReporter
	logger              *slog.Logger
	tracer              trace.Tracer
	ratingCounter       metric.Int64Counter
	uploadCounter       metric.Int64Counter
	orphanCounter       metric.Int64Counter
	now                 func() time.Time
}

func (u Usecase) Health() map[string]string {
	return u.repo.Health()
}

func (u Usecase) Close() error {
	return u.repo.Close()
}

type noopCache struct{}

func (noopCache) GetTopRated(context.Context) ([]Book, int64, bool) { return nil, 0, false }
func (noopCache) SetTopRated(context.Context, int64, []Book)         {}
func (noopCache) InvalidateTopRated(context.Context)                {}
