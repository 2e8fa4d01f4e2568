package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/librarease/catalog/internal/usecase"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Book struct {
	ID            uuid.UUID                   `gorm:"column:id;primaryKey;type:uuid"`
	OwnerID       string                      `gorm:"column:owner_id;type:varchar(255);not null;index"`
	Title         string                      `gorm:"column:title;type:varchar(255);not null"`
	Author        string                      `gorm:"column:author;type:varchar(255);not null"`
	Year          int                         `gorm:"column:year;type:int;not null"`
	Genre         string                      `gorm:"column:genre;type:varchar(255);not null"`
	Image         string                      `gorm:"column:image;type:varchar(255);index"`
	Colors        datatypes.JSON              `gorm:"column:colors;not null"`
	Ratings       datatypes.JSONSlice[Rating] `gorm:"column:ratings;not null"`
	AverageRating float64                     `gorm:"column:average_rating;not null;default:0;index"`
	Version       int64                       `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time                   `gorm:"column:created_at"`
	UpdatedAt     time.Time                   `gorm:"column:updated_at"`
}

type Rating struct {
	UserID string `json:"userId"`
	Grade  int    `json:"grade"`
}

func (Book) TableName() string {
	return "books"
}

func (b *Book) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

var bookSortColumns = map[string]string{
	"created_at":     "created_at",
	"updated_at":     "updated_at",
	"title":          "title",
	"author":         "author",
	"year":           "year",
	"average_rating": "average_rating",
}

func (s *service) ListBooks(ctx context.Context, opt usecase.ListBooksOption) ([]usecase.Book, int, error) {
	var (
		books  []Book
		ubooks = make([]usecase.Book, 0)
		count  int64
	)

	filtered := func() *gorm.DB {
		db := s.db.WithContext(ctx).Model(&Book{})
		if opt.OwnerID != "" {
			db = db.Where("owner_id = ?", opt.OwnerID)
		}
		if opt.Genre != "" {
			db = db.Where("genre = ?", opt.Genre)
		}
		return db
	}

	var (
		orderBy = "created_at"
		orderIn = "DESC"
	)
	if col, ok := bookSortColumns[opt.SortBy]; ok {
		orderBy = col
	}
	if opt.SortIn == "asc" {
		orderIn = "ASC"
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return filtered().Count(&count).Error
	})

	g.Go(func() error {
		db := filtered().Order(orderBy + " " + orderIn).Order("id")
		if opt.Limit > 0 {
			db = db.Limit(opt.Limit)
		}
		if opt.Skip > 0 {
			db = db.Offset(opt.Skip)
		}
		return db.Find(&books).Error
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	for _, b := range books {
		ubooks = append(ubooks, b.ConvertToUsecase())
	}
	return ubooks, int(count), nil
}

func (s *service) GetBookByID(ctx context.Context, id uuid.UUID) (usecase.Book, error) {
	var b Book

	err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usecase.Book{}, usecase.ErrRecordNotFound
	}
	if err != nil {
		return usecase.Book{}, err
	}

	return b.ConvertToUsecase(), nil
}

func (s *service) CreateBook(ctx context.Context, book usecase.Book) (usecase.Book, error) {
	b := Book{
		OwnerID:       book.OwnerID,
		Title:         book.Title,
		Author:        book.Author,
		Year:          book.Year,
		Genre:         book.Genre,
		Image:         book.Image,
		Colors:        colorsOrEmpty(book.Colors),
		Ratings:       convertRatings(book.Ratings),
		AverageRating: book.AverageRating,
		Version:       1,
	}

	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return usecase.Book{}, err
	}
	return b.ConvertToUsecase(), nil
}

// UpdateBook writes the scalar fields and image of book if its version is
// still current.
func (s *service) UpdateBook(ctx context.Context, book usecase.Book) (usecase.Book, error) {
	return s.conditionalUpdate(ctx, book.ID, book.Version, map[string]any{
		"title":  book.Title,
		"author": book.Author,
		"year":   book.Year,
		"genre":  book.Genre,
		"image":  book.Image,
		"colors": colorsOrEmpty(book.Colors),
	})
}

// UpdateBookRatings writes the rating list and its average together if
// version is still current.
func (s *service) UpdateBookRatings(ctx context.Context, id uuid.UUID, version int64, ratings []usecase.Rating, average float64) (usecase.Book, error) {
	return s.conditionalUpdate(ctx, id, version, map[string]any{
		"ratings":        convertRatings(ratings),
		"average_rating": average,
	})
}

func (s *service) conditionalUpdate(ctx context.Context, id uuid.UUID, version int64, fields map[string]any) (usecase.Book, error) {
	fields["version"] = gorm.Expr("version + 1")
	fields["updated_at"] = time.Now()

	res := s.db.
		WithContext(ctx).
		Model(&Book{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if res.Error != nil {
		return usecase.Book{}, res.Error
	}
	if res.RowsAffected == 0 {
		return usecase.Book{}, s.missOrConflict(ctx, id)
	}

	return s.GetBookByID(ctx, id)
}

func (s *service) DeleteBook(ctx context.Context, id uuid.UUID, version int64) error {
	res := s.db.
		WithContext(ctx).
		Where("id = ? AND version = ?", id, version).
		Delete(&Book{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

// missOrConflict explains a conditional write that matched no row.
func (s *service) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Book{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return usecase.ErrRecordNotFound
	}
	return fmt.Errorf("book %s: %w", id, usecase.ErrVersionConflict)
}

func (s *service) IsImageReferenced(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Book{}).Where("image = ?", name).Count(&count).Error
	return count > 0, err
}

func (s *service) ListImageNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&Book{}).Where("image <> ''").Pluck("image", &names).Error
	return names, err
}

// Convert core model to Usecase
func (b Book) ConvertToUsecase() usecase.Book {
	ratings := make([]usecase.Rating, 0, len(b.Ratings))
	for _, r := range b.Ratings {
		ratings = append(ratings, usecase.Rating{UserID: r.UserID, Grade: r.Grade})
	}
	var colors []byte
	if len(b.Colors) > 0 && string(b.Colors) != "{}" {
		colors = []byte(b.Colors)
	}
	return usecase.Book{
		ID:            b.ID,
		OwnerID:       b.OwnerID,
		Title:         b.Title,
		Author:        b.Author,
		Year:          b.Year,
		Genre:         b.Genre,
		Image:         b.Image,
		Colors:        colors,
		Ratings:       ratings,
		AverageRating: b.AverageRating,
		Version:       b.Version,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func convertRatings(ratings []usecase.Rating) datatypes.JSONSlice[Rating] {
	out := make([]Rating, 0, len(ratings))
	for _, r := range ratings {
		out = append(out, Rating{UserID: r.UserID, Grade: r.Grade})
	}
	return datatypes.NewJSONSlice(out)
}

func colorsOrEmpty(colors []byte) datatypes.JSON {
	if len(colors) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(colors)
}
