package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/time/rate"

	"github.com/librarease/catalog/internal/config"
)

// mutationRate caps writes per client IP, in requests per second.
const mutationRate = rate.Limit(5)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("catalog", otelecho.WithSkipper(skipper)))
	e.Use(middleware.RequestID())
	e.Use(NewEchoLogger(s.logger))
	e.Use(middleware.Recover())
	// room for the 700KiB image plus the multipart envelope
	e.Use(middleware.BodyLimit("2M"))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"https://*", "http://*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:       300,
	}))

	e.GET("/api/health", s.healthHandler)

	if s.uploadDir != "" {
		e.Static(config.UPLOADS_ROUTE, s.uploadDir)
	}

	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(mutationRate))

	var bookGroup = e.Group("/api/books")
	bookGroup.GET("", s.ListBooks)
	bookGroup.GET("/bestrating", s.TopRatedBooks)
	bookGroup.GET("/:id", s.GetBookByID)
	bookGroup.POST("", s.CreateBook, limiter, s.AuthMiddleware)
	bookGroup.PUT("/:id", s.UpdateBook, limiter, s.AuthMiddleware)
	bookGroup.DELETE("/:id", s.DeleteBook, limiter, s.AuthMiddleware)
	bookGroup.POST("/:id/rating", s.RateBook, limiter, s.AuthMiddleware)

	return e
}

func (s *Server) healthHandler(ctx echo.Context) error {
	stats := s.server.Health()
	if stats["status"] != "up" {
		return ctx.JSON(http.StatusServiceUnavailable, stats)
	}
	return ctx.JSON(http.StatusOK, stats)
}
