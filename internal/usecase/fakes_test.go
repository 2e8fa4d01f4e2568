package usecase

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/librarease/catalog/internal/config"
	"github.com/librarease/catalog/internal/imaging"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory Repository with the same version check as the
// gorm adapter.
type memRepo struct {
	mu    sync.Mutex
	books map[uuid.UUID]Book

	createErr error
	// beforeWrite runs once, outside the lock, before the next
	// conditional write is evaluated.
	beforeWrite func()
	// afterList runs once, outside the lock, after the next listing has
	// been read and before it is returned.
	afterList func()
}

func newMemRepo() *memRepo {
	return &memRepo{books: make(map[uuid.UUID]Book)}
}

func cloneBook(b Book) Book {
	b.Ratings = slices.Clone(b.Ratings)
	b.Colors = slices.Clone(b.Colors)
	return b
}

func (r *memRepo) hook() {
	r.mu.Lock()
	fn := r.beforeWrite
	r.beforeWrite = nil
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *memRepo) Health() map[string]string { return map[string]string{"status": "up"} }
func (r *memRepo) Close() error              { return nil }

func (r *memRepo) ListBooks(_ context.Context, opt ListBooksOption) ([]Book, int, error) {
	r.mu.Lock()
	list, total := r.list(opt)
	fn := r.afterList
	r.afterList = nil
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
	return list, total, nil
}

func (r *memRepo) list(opt ListBooksOption) ([]Book, int) {
	list := make([]Book, 0, len(r.books))
	for _, b := range r.books {
		if opt.OwnerID != "" && b.OwnerID != opt.OwnerID {
			continue
		}
		list = append(list, cloneBook(b))
	}
	slices.SortFunc(list, func(a, b Book) int {
		if opt.SortBy == "average_rating" {
			c := cmp.Compare(a.AverageRating, b.AverageRating)
			if opt.SortIn != "asc" {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	total := len(list)
	if opt.Skip > 0 {
		list = list[min(opt.Skip, len(list)):]
	}
	if opt.Limit > 0 && len(list) > opt.Limit {
		list = list[:opt.Limit]
	}
	return list, total
}

func (r *memRepo) GetBookByID(_ context.Context, id uuid.UUID) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return Book{}, ErrRecordNotFound
	}
	return cloneBook(b), nil
}

func (r *memRepo) CreateBook(_ context.Context, b Book) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Book{}, r.createErr
	}
	b.ID = uuid.New()
	b.Version = 1
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	if b.Ratings == nil {
		b.Ratings = []Rating{}
	}
	r.books[b.ID] = cloneBook(b)
	return cloneBook(b), nil
}

func (r *memRepo) write(id uuid.UUID, version int64, mutate func(*Book)) (Book, error) {
	r.hook()

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.books[id]
	if !ok {
		return Book{}, ErrRecordNotFound
	}
	if cur.Version != version {
		return Book{}, fmt.Errorf("book %s: %w", id, ErrVersionConflict)
	}
	mutate(&cur)
	cur.Version++
	cur.UpdatedAt = time.Now()
	r.books[id] = cloneBook(cur)
	return cloneBook(cur), nil
}

func (r *memRepo) UpdateBook(_ context.Context, b Book) (Book, error) {
	return r.write(b.ID, b.Version, func(cur *Book) {
		cur.Title, cur.Author, cur.Year, cur.Genre = b.Title, b.Author, b.Year, b.Genre
		cur.Image, cur.Colors = b.Image, b.Colors
	})
}

func (r *memRepo) UpdateBookRatings(_ context.Context, id uuid.UUID, version int64, ratings []Rating, average float64) (Book, error) {
	return r.write(id, version, func(cur *Book) {
		cur.Ratings = slices.Clone(ratings)
		cur.AverageRating = average
	})
}

func (r *memRepo) DeleteBook(_ context.Context, id uuid.UUID, version int64) error {
	r.hook()

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.books[id]
	if !ok {
		return ErrRecordNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	delete(r.books, id)
	return nil
}

func (r *memRepo) IsImageReferenced(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.books {
		if b.Image == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListImageNames(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, b := range r.books {
		if b.Image != "" {
			names = append(names, b.Image)
		}
	}
	return names, nil
}

func (r *memRepo) mustGet(t *testing.T, id uuid.UUID) Book {
	t.Helper()
	b, err := r.GetBookByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.books)
}

// dirStager stages into a temp dir after the declared-metadata check.
type dirStager struct {
	dir string
}

func (s *dirStager) Stage(_ context.Context, c imaging.Candidate, body io.Reader) (string, error) {
	if err := imaging.CheckIntake(c); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.dir, "staged-*."+imaging.StagingExtension(c.ContentType))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (s *dirStager) Purge(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// renameConverter stands in for WebP encoding: it renames the staged file
// to its canonical name.
type renameConverter struct {
	err   error
	calls int
}

func (c *renameConverter) Convert(_ context.Context, staged, original string) (imaging.Converted, error) {
	c.calls++
	if c.err != nil {
		return imaging.Converted{}, &imaging.ConversionError{Path: staged, Err: c.err}
	}
	name := imaging.CanonicalName(original, time.Now())
	dest := filepath.Join(filepath.Dir(staged), name)
	if err := os.Rename(staged, dest); err != nil {
		return imaging.Converted{}, err
	}
	return imaging.Converted{Path: dest, Name: name, Colors: []byte(`{"0":[1,2,3,255]}`)}, nil
}

type memStorage struct {
	mu     sync.Mutex
	assets map[string]time.Time

	publishErr error
	removeErr  error
	// dropPublished acknowledges publishes without keeping the object.
	dropPublished bool
}

func newMemStorage() *memStorage {
	return &memStorage{assets: make(map[string]time.Time)}
}

func (s *memStorage) Publish(_ context.Context, localPath, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	if err := os.Remove(localPath); err != nil {
		return err
	}
	if !s.dropPublished {
		s.assets[name] = time.Now()
	}
	return nil
}

func (s *memStorage) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.assets[name]
	return ok, nil
}

func (s *memStorage) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.assets, name)
	return nil
}

func (s *memStorage) GetPublicURL(context.Context) (string, error) {
	return "http://cdn.test/uploads", nil
}

func (s *memStorage) ListAssets(context.Context) ([]StoredAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]StoredAsset, 0, len(s.assets))
	for n, m := range s.assets {
		list = append(list, StoredAsset{Name: n, ModifiedAt: m})
	}
	return list, nil
}

func (s *memStorage) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.assets))
	for n := range s.assets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// memCache follows the generation rules of the redis cache.
type memCache struct {
	mu          sync.Mutex
	books       []Book
	set         bool
	generation  int64
	hits        int
	invalidated int
	skipped     int
}

func (c *memCache) GetTopRated(context.Context) ([]Book, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return nil, c.generation, false
	}
	c.hits++
	return slices.Clone(c.books), c.generation, true
}

func (c *memCache) SetTopRated(_ context.Context, generation int64, books []Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		c.skipped++
		return
	}
	c.books, c.set = slices.Clone(books), true
}

func (c *memCache) InvalidateTopRated(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books, c.set = nil, false
	c.generation++
	c.invalidated++
}

type memReporter struct {
	mu       sync.Mutex
	enqueued []string
}

func (r *memReporter) EnqueueAssetCleanup(_ context.Context, name, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = append(r.enqueued, name)
	return nil
}

type fixture struct {
	uc        Usecase
	repo      *memRepo
	storage   *memStorage
	converter *renameConverter
	cache     *memCache
	reporter  *memReporter
	stageDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepo(),
		storage:   newMemStorage(),
		converter: &renameConverter{},
		cache:     &memCache{},
		reporter:  &memReporter{},
		stageDir:  t.TempDir(),
	}
	f.uc = New(f.repo, &dirStager{dir: f.stageDir}, f.converter, f.storage,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCache(f.cache),
		WithOrphanReporter(f.reporter),
	)
	return f
}

func (f *fixture) staged(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.stageDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func asUser(userID string) context.Context {
	return context.WithValue(context.Background(), config.CTX_KEY_USER_ID, userID)
}

func pngUpload(name string, size int) *Upload {
	body := make([]byte, size)
	copy(body, "\x89PNG\r\n\x1a\n")
	return &Upload{
		Name:        name,
		ContentType: "image/png",
		Size:        int64(size),
		Body:        bytes.NewReader(body),
	}
}

func intPtr(n int) *int { return &n }
