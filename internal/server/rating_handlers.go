package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type RateBookRequest struct {
	ID     string `param:"id" validate:"required,uuid"`
	Rating *int   `json:"rating"`
}

func (s *Server) RateBook(ctx echo.Context) error {
	var req RateBookRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return badRequest(ctx, err)
	}
	// the grade range is checked by the core
	if req.Rating == nil {
		return badRequest(ctx, errors.New("rating is required"))
	}

	id, _ := uuid.Parse(req.ID)
	b, err := s.server.RateBook(ctx.Request().Context(), id, *req.Rating)
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, Res{Data: toBook(b), Message: "rating added"})
}
