package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/librarease/catalog/internal/usecase"
)

type Book struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Year          int             `json:"year"`
	Genre         string          `json:"genre"`
	Image         string          `json:"image,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Colors        json.RawMessage `json:"colors,omitempty"`
	Ratings       []Rating        `json:"ratings"`
	AverageRating float64         `json:"average_rating"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type Rating struct {
	UserID string `json:"user_id"`
	Grade  int    `json:"grade"`
}

func toBook(b usecase.Book) Book {
	ratings := make([]Rating, 0, len(b.Ratings))
	for _, r := range b.Ratings {
		ratings = append(ratings, Rating{UserID: r.UserID, Grade: r.Grade})
	}
	return Book{
		ID:            b.ID.String(),
		OwnerID:       b.OwnerID,
		Title:         b.Title,
		Author:        b.Author,
		Year:          b.Year,
		Genre:         b.Genre,
		Image:         b.Image,
		ImageURL:      b.ImageURL,
		Colors:        b.Colors,
		Ratings:       ratings,
		AverageRating: b.AverageRating,
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBooks(list []usecase.Book) []Book {
	books := make([]Book, 0, len(list))
	for _, b := range list {
		books = append(books, toBook(b))
	}
	return books
}

type ListBooksRequest struct {
	Skip    int    `query:"skip" validate:"gte=0"`
	Limit   int    `query:"limit" validate:"required,gte=1,lte=100"`
	OwnerID string `query:"owner_id"`
	Genre   string `query:"genre"`
	SortBy  string `query:"sort_by" validate:"omitempty,oneof=created_at updated_at title author year average_rating"`
	SortIn  string `query:"sort_in" validate:"omitempty,oneof=asc desc"`
}

func (s *Server) ListBooks(ctx echo.Context) error {
	var req = ListBooksRequest{Limit: 20}
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return badRequest(ctx, err)
	}

	list, total, err := s.server.ListBooks(ctx.Request().Context(), usecase.ListBooksOption{
		Skip:    req.Skip,
		Limit:   req.Limit,
		OwnerID: req.OwnerID,
		Genre:   req.Genre,
		SortBy:  req.SortBy,
		SortIn:  req.SortIn,
	})
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Res{
		Data: toBooks(list),
		Meta: &Meta{
			Total: total,
			Skip:  req.Skip,
			Limit: req.Limit,
		},
	})
}

func (s *Server) TopRatedBooks(ctx echo.Context) error {
	list, err := s.server.TopRatedBooks(ctx.Request().Context())
	if err != nil {
		return s.errorResponse(ctx, err)
	}
	return ctx.JSON(http.StatusOK, Res{Data: toBooks(list)})
}

type GetBookByIDRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

func (s *Server) GetBookByID(ctx echo.Context) error {
	var req GetBookByIDRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return badRequest(ctx, err)
	}

	id, _ := uuid.Parse(req.ID)
	b, err := s.server.GetBookByID(ctx.Request().Context(), id)
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Res{Data: toBook(b)})
}

type CreateBookRequest struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
	Year   int    `json:"year" validate:"required,gte=1"`
	Genre  string `json:"genre" validate:"required"`
	Rating *int   `json:"rating"`
}

// CreateBook accepts either multipart/form-data with the book as JSON in
// the "book" field and an optional "image" file, or a JSON body.
func (s *Server) CreateBook(ctx echo.Context) error {
	var req CreateBookRequest
	up, closeUpload, err := s.bindBookForm(ctx, &req)
	if err != nil {
		return badRequest(ctx, err)
	}
	defer closeUpload()

	if err := s.validator.Struct(req); err != nil {
		return badRequest(ctx, err)
	}

	b, err := s.server.CreateBook(ctx.Request().Context(), usecase.BookInput{
		Title:  req.Title,
		Author: req.Author,
		Year:   req.Year,
		Genre:  req.Genre,
		Rating: req.Rating,
	}, up)
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, Res{Data: toBook(b)})
}

type UpdateBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Year   int    `json:"year" validate:"omitempty,gte=1"`
	Genre  string `json:"genre"`
}

func (s *Server) UpdateBook(ctx echo.Context) error {
	var idReq GetBookByIDRequest
	idReq.ID = ctx.Param("id")
	if err := s.validator.Struct(idReq); err != nil {
		return badRequest(ctx, err)
	}

	var req UpdateBookRequest
	up, closeUpload, err := s.bindBookForm(ctx, &req)
	if err != nil {
		return badRequest(ctx, err)
	}
	defer closeUpload()

	if err := s.validator.Struct(req); err != nil {
		return badRequest(ctx, err)
	}

	id, _ := uuid.Parse(idReq.ID)
	b, err := s.server.UpdateBook(ctx.Request().Context(), id, usecase.BookPatch{
		Title:  req.Title,
		Author: req.Author,
		Year:   req.Year,
		Genre:  req.Genre,
	}, up)
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Res{Data: toBook(b)})
}

func (s *Server) DeleteBook(ctx echo.Context) error {
	var req GetBookByIDRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return badRequest(ctx, err)
	}

	id, _ := uuid.Parse(req.ID)
	if err := s.server.DeleteBook(ctx.Request().Context(), id); err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Res{Message: "book deleted"})
}

// bindBookForm decodes the book fields into dst and returns the optional
// image upload. The returned close func is always safe to call.
func (s *Server) bindBookForm(ctx echo.Context, dst any) (*usecase.Upload, func(), error) {
	noop := func() {}

	ct := ctx.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		if err := json.NewDecoder(ctx.Request().Body).Decode(dst); err != nil {
			return nil, noop, fmt.Errorf("invalid book body: %w", err)
		}
		return nil, noop, nil
	}

	raw := ctx.FormValue("book")
	if raw == "" {
		return nil, noop, errors.New(`multipart request requires a "book" field`)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return nil, noop, fmt.Errorf("invalid book field: %w", err)
	}

	fh, err := ctx.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, fmt.Errorf("invalid image field: %w", err)
	}

	return openUpload(fh)
}

func openUpload(fh *multipart.FileHeader) (*usecase.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, fmt.Errorf("open image: %w", err)
	}
	return &usecase.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}, func() { f.Close() }, nil
}
