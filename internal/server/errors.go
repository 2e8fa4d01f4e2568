package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/librarease/catalog/internal/usecase"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch usecase.KindOf(err) {
	case usecase.KindValidation:
		switch usecase.CodeOf(err) {
		case usecase.CodeFileTooLarge:
			return http.StatusRequestEntityTooLarge
		case usecase.CodeUnsupportedMediaType:
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case usecase.KindNotFound:
		return http.StatusNotFound
	case usecase.KindAuthentication:
		return http.StatusUnauthorized
	case usecase.KindAuthorization:
		return http.StatusForbidden
	case usecase.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) errorResponse(ctx echo.Context, err error) error {
	status := statusOf(err)

	res := ErrorRes{Error: "internal_error", Message: "internal server error"}
	var ue *usecase.Error
	if errors.As(err, &ue) {
		res.Error = ue.Code
		res.Message = ue.Message
		res.Retryable = ue.Retryable()
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx.Request().Context(), "request failed",
			slog.String("code", res.Error),
			slog.String("err", err.Error()),
		)
	}
	return ctx.JSON(status, res)
}

func badRequest(ctx echo.Context, err error) error {
	return ctx.JSON(http.StatusBadRequest, ErrorRes{
		Error:   usecase.CodeInvalidInput,
		Message: err.Error(),
	})
}
