package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Accepted grade range, inclusive.
const (
	MinGrade = 0
	MaxGrade = 5
)

// AddRating returns a copy of b with userID's grade appended and the
// average recomputed. b itself is not modified.
func AddRating(b Book, userID string, grade int) (Book, error) {
	if userID == "" {
		return Book{}, ValidationError(CodeInvalidInput, "rating requires a user", nil)
	}
	if grade < MinGrade || grade > MaxGrade {
		return Book{}, ValidationError(CodeInvalidGrade,
			fmt.Sprintf("grade must be between %d and %d", MinGrade, MaxGrade), nil)
	}
	if slices.ContainsFunc(b.Ratings, func(r Rating) bool { return r.UserID == userID }) {
		return Book{}, ConflictError(CodeDuplicateRating, "you have already rated this book")
	}

	ratings := make([]Rating, 0, len(b.Ratings)+1)
	ratings = append(ratings, b.Ratings...)
	ratings = append(ratings, Rating{UserID: userID, Grade: grade})

	b.Ratings = ratings
	b.AverageRating = AverageOf(ratings)
	return b, nil
}

// AverageOf is the mean grade rounded to one decimal place, 0 when there
// are no ratings.
func AverageOf(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	var sum int
	for _, r := range ratings {
		sum += r.Grade
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}

// RateBook records the requester's grade for a book. The duplicate check,
// the append and the average are computed on one snapshot and written
// back only if that snapshot is still current.
func (u Usecase) RateBook(ctx context.Context, id uuid.UUID, grade int) (Book, error) {
	ctx, span := u.tracer.Start(ctx, "usecase.RateBook", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	userID, err := requesterID(ctx)
	if err != nil {
		return Book{}, err
	}

	for attempt := range maxWriteAttempts {
		book, err := u.getBook(ctx, id)
		if err != nil {
			return Book{}, err
		}

		next, err := AddRating(book, userID, grade)
		if err != nil {
			return Book{}, err
		}

		updated, err := u.repo.UpdateBookRatings(ctx, id, book.Version, next.Ratings, next.AverageRating)
		switch {
		case errors.Is(err, ErrVersionConflict):
			u.logger.DebugContext(ctx, "rating lost a race, retrying",
				"book_id", id.String(), "attempt", attempt+1)
			continue
		case errors.Is(err, ErrRecordNotFound):
			return Book{}, bookNotFound(id)
		case err != nil:
			return Book{}, InternalError(CodeStoreFailed, "save rating", err)
		}

		u.ratingCounter.Add(ctx, 1)
		u.cache.InvalidateTopRated(ctx)

		publicURL, _ := u.fileStorageProvider.GetPublicURL(ctx)
		return withImageURL(publicURL, updated), nil
	}

	return Book{}, ConflictError(CodeWriteConflict, "book was rated concurrently, try again")
}
