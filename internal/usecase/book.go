package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/librarease/catalog/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TopRatedLimit is the size of the best-rated listing.
const TopRatedLimit = 5

// maxWriteAttempts bounds the optimistic-concurrency retry loops.
const maxWriteAttempts = 5

type Book struct {
	ID            uuid.UUID
	OwnerID       string
	Title         string
	Author        string
	Year          int
	Genre         string
	Image         string
	ImageURL      string
	Colors        []byte
	Ratings       []Rating
	AverageRating float64
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Rating struct {
	UserID string `json:"userId"`
	Grade  int    `json:"grade"`
}

type ListBooksOption struct {
	Skip    int
	Limit   int
	OwnerID string
	Genre   string
	SortBy  string
	SortIn  string
}

// BookInput carries the client-supplied fields of a new book. Rating is
// the owner's own optional first grade.
type BookInput struct {
	Title  string
	Author string
	Year   int
	Genre  string
	Rating *int
}

// BookPatch carries an update. Zero fields keep the current value.
type BookPatch struct {
	Title  string
	Author string
	Year   int
	Genre  string
}

// Upload is an image file as received by the transport.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (in BookInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(in.Author) == "" {
		missing = append(missing, "author")
	}
	if in.Year == 0 {
		missing = append(missing, "year")
	}
	if strings.TrimSpace(in.Genre) == "" {
		missing = append(missing, "genre")
	}
	if len(missing) > 0 {
		return ValidationError(CodeInvalidInput, "missing required fields: "+strings.Join(missing, ", "), nil)
	}
	if in.Year < 0 {
		return ValidationError(CodeInvalidInput, "year must be positive", nil)
	}
	return nil
}

func (p BookPatch) validate() error {
	if p.Year < 0 {
		return ValidationError(CodeInvalidInput, "year must be positive", nil)
	}
	return nil
}

func (p BookPatch) apply(b Book) Book {
	if t := strings.TrimSpace(p.Title); t != "" {
		b.Title = t
	}
	if a := strings.TrimSpace(p.Author); a != "" {
		b.Author = a
	}
	if p.Year != 0 {
		b.Year = p.Year
	}
	if g := strings.TrimSpace(p.Genre); g != "" {
		b.Genre = g
	}
	return b
}

// requesterID returns the authenticated user placed in ctx by the
// transport's auth middleware.
func requesterID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(config.CTX_KEY_USER_ID).(string)
	if !ok || userID == "" {
		return "", AuthenticationError("user id not found in context", nil)
	}
	return userID, nil
}

func (u Usecase) ListBooks(ctx context.Context, opt ListBooksOption) ([]Book, int, error) {
	books, total, err := u.repo.ListBooks(ctx, opt)
	if err != nil {
		return nil, 0, InternalError(CodeStoreFailed, "list books", err)
	}

	publicURL, _ := u.fileStorageProvider.GetPublicURL(ctx)
	for i := range books {
		books[i] = withImageURL(publicURL, books[i])
	}
	return books, total, nil
}

// TopRatedBooks returns at most TopRatedLimit books ordered by average
// rating, highest first.
func (u Usecase) TopRatedBooks(ctx context.Context) ([]Book, error) {
	books, generation, ok := u.cache.GetTopRated(ctx)
	if ok {
		return books, nil
	}

	books, _, err := u.ListBooks(ctx, ListBooksOption{
		Limit:  TopRatedLimit,
		SortBy: "average_rating",
		SortIn: "desc",
	})
	if err != nil {
		return nil, err
	}

	u.cache.SetTopRated(ctx, generation, books)
	return books, nil
}

func (u Usecase) GetBookByID(ctx context.Context, id uuid.UUID) (Book, error) {
	book, err := u.getBook(ctx, id)
	if err != nil {
		return Book{}, err
	}
	publicURL, _ := u.fileStorageProvider.GetPublicURL(ctx)
	return withImageURL(publicURL, book), nil
}

// CreateBook stores a new book owned by the requester. When an upload is
// given it is validated, converted and published before the insert; a
// failed insert discards the published asset.
func (u Usecase) CreateBook(ctx context.Context, in BookInput, up *Upload) (Book, error) {
	ctx, span := u.tracer.Start(ctx, "usecase.CreateBook")
	defer span.End()

	ownerID, err := requesterID(ctx)
	if err != nil {
		return Book{}, err
	}
	if err := in.validate(); err != nil {
		return Book{}, err
	}

	book := Book{
		OwnerID: ownerID,
		Title:   strings.TrimSpace(in.Title),
		Author:  strings.TrimSpace(in.Author),
		Year:    in.Year,
		Genre:   strings.TrimSpace(in.Genre),
	}
	if in.Rating != nil {
		if book, err = AddRating(book, ownerID, *in.Rating); err != nil {
			return Book{}, err
		}
	}

	var asset string
	if up != nil {
		converted, err := u.publishUpload(ctx, *up)
		if err != nil {
			return Book{}, err
		}
		asset = converted.Name
		book.Image = converted.Name
		book.Colors = converted.Colors
	}

	created, err := u.repo.CreateBook(ctx, book)
	if err != nil {
		if asset != "" {
			u.discardAsset(ctx, asset, "create_failed")
		}
		return Book{}, InternalError(CodeStoreFailed, "create book", err)
	}

	span.SetAttributes(attribute.String("book.id", created.ID.String()))
	u.cache.InvalidateTopRated(ctx)

	publicURL, _ := u.fileStorageProvider.GetPublicURL(ctx)
	return withImageURL(publicURL, created), nil
}

// UpdateBook applies patch to a book owned by the requester, optionally
// replacing its image. The previous image is removed only after the
// store has accepted the new reference.
func (u Usecase) UpdateBook(ctx context.Context, id uuid.UUID, patch BookPatch, up *Upload) (Book, error) {
	ctx, span := u.tracer.Start(ctx, "usecase.UpdateBook", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	userID, err := requesterID(ctx)
	if err != nil {
		return Book{}, err
	}

	book, err := u.getBook(ctx, id)
	if err != nil {
		return Book{}, err
	}
	if err := Authorize(userID, book); err != nil {
		return Book{}, err
	}
	if err := patch.validate(); err != nil {
		return Book{}, err
	}

	var converted *publishedAsset
	if up != nil {
		c, err := u.publishUpload(ctx, *up)
		if err != nil {
			return Book{}, err
		}
		converted = &publishedAsset{Name: c.Name, Colors: c.Colors}
	}

	for attempt := range maxWriteAttempts {
		if attempt > 0 {
			if book, err = u.getBook(ctx, id); err == nil {
				err = Authorize(userID, book)
			}
			if err != nil {
				converted.discard(ctx, u, "update_aborted")
				return Book{}, err
			}
		}

		next := patch.apply(book)
		if converted != nil {
			next.Image = converted.Name
			next.Colors = converted.Colors
		}

		updated, err := u.repo.UpdateBook(ctx, next)
		switch {
		case errors.Is(err, ErrVersionConflict):
			u.logger.DebugContext(ctx, "book update lost a race, retrying",
				"book_id", id.String(), "attempt", attempt+1)
			continue
		case errors.Is(err, ErrRecordNotFound):
			converted.discard(ctx, u, "update_aborted")
			return Book{}, bookNotFound(id)
		case err != nil:
			converted.discard(ctx, u, "update_failed")
			return Book{}, InternalError(CodeStoreFailed, "update book", err)
		}

		// drop cached listings before the old image goes away
		u.cache.InvalidateTopRated(ctx)
		if converted != nil {
			u.replaceAsset(ctx, book.Image, updated.Image)
		}

		publicURL, _ := u.fileStorageProvider.GetPublicURL(ctx)
		return withImageURL(publicURL, updated), nil
	}

	converted.discard(ctx, u, "update_conflict")
	return Book{}, ConflictError(CodeWriteConflict, "book was modified concurrently, try again")
}

// DeleteBook removes a book owned by the requester and then its image.
func (u Usecase) DeleteBook(ctx context.Context, id uuid.UUID) error {
	ctx, span := u.tracer.Start(ctx, "usecase.DeleteBook", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	userID, err := requesterID(ctx)
	if err != nil {
		return err
	}

	for attempt := range maxWriteAttempts {
		book, err := u.getBook(ctx, id)
		if err != nil {
			return err
		}
		if err := Authorize(userID, book); err != nil {
			return err
		}

		err = u.repo.DeleteBook(ctx, id, book.Version)
		switch {
		case errors.Is(err, ErrVersionConflict):
			u.logger.DebugContext(ctx, "book delete lost a race, retrying",
				"book_id", id.String(), "attempt", attempt+1)
			continue
		case errors.Is(err, ErrRecordNotFound):
			return bookNotFound(id)
		case err != nil:
			return InternalError(CodeStoreFailed, "delete book", err)
		}

		u.cache.InvalidateTopRated(ctx)
		if book.Image != "" {
			u.discardAsset(ctx, book.Image, "book_deleted")
		}
		return nil
	}

	return ConflictError(CodeWriteConflict, "book was modified concurrently, try again")
}

func (u Usecase) getBook(ctx context.Context, id uuid.UUID) (Book, error) {
	book, err := u.repo.GetBookByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return Book{}, bookNotFound(id)
	}
	if err != nil {
		return Book{}, InternalError(CodeStoreFailed, "get book", err)
	}
	return book, nil
}

func bookNotFound(id uuid.UUID) *Error {
	return NotFoundError(CodeBookNotFound, fmt.Sprintf("book %s not found", id))
}

func withImageURL(publicURL string, b Book) Book {
	if b.Image != "" {
		b.ImageURL = fmt.Sprintf("%s/%s", strings.TrimRight(publicURL, "/"), b.Image)
	}
	return b
}
