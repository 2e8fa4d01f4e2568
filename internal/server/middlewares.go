package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/librarease/catalog/internal/config"
	"github.com/librarease/catalog/internal/usecase"
)

const bearerPrefix = "Bearer "

// AuthMiddleware verifies the bearer token with the injected verifier and
// puts the resulting user id into the request context. Requests without a
// valid token never reach the handler.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		header := c.Request().Header.Get(config.HEADER_KEY_AUTHORIZATION)
		if !strings.HasPrefix(header, bearerPrefix) {
			return c.JSON(http.StatusUnauthorized, ErrorRes{
				Error:   usecase.CodeUnauthenticated,
				Message: "Authorization header is required",
			})
		}
		token := strings.TrimSpace(header[len(bearerPrefix):])

		userID, err := s.verifier.VerifyToken(ctx, token)
		if err != nil || userID == "" {
			if err != nil {
				s.logger.DebugContext(ctx, "token rejected", slog.String("err", err.Error()))
			}
			return c.JSON(http.StatusUnauthorized, ErrorRes{
				Error:   usecase.CodeUnauthenticated,
				Message: "Invalid token",
			})
		}

		ctx = context.WithValue(ctx, config.CTX_KEY_USER_ID, userID)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Set("user_id", userID)

		return next(c)
	}
}
