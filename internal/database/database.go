package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/librarease/catalog/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// implements usecase.Repository
type service struct {
	db *gorm.DB
}

// Open connects to the database selected by DB_DRIVER. Postgres is the
// default; sqlite is used for single-node deployments and tests.
func Open(l *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver := os.Getenv(config.ENV_KEY_DB_DRIVER); driver {
	case config.DB_DRIVER_SQLITE:
		path := os.Getenv(config.ENV_KEY_DB_PATH)
		if path == "" {
			path = "catalog.db"
		}
		dialector = sqlite.Open(path)
	case "", config.DB_DRIVER_POSTGRES:
		var (
			dbname = os.Getenv(config.ENV_KEY_DB_DATABASE)
			dbpass = os.Getenv(config.ENV_KEY_DB_PASSWORD)
			dbuser = os.Getenv(config.ENV_KEY_DB_USER)
			dbport = os.Getenv(config.ENV_KEY_DB_PORT)
			dbhost = os.Getenv(config.ENV_KEY_DB_HOST)
		)
		connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbuser, dbpass, dbhost, dbport, dbname)
		dialector = postgres.Open(connStr)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewSlogGormLogger(l),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := gormDB.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("register tracing plugin: %w", err)
	}

	db, err := gormDB.DB()
	if err != nil {
		return nil, err
	}

	if os.Getenv(config.ENV_KEY_DB_DRIVER) == config.DB_DRIVER_SQLITE {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else if m, err := strconv.Atoi(os.Getenv(config.ENV_KEY_DB_MAX_OPEN_CONNECTIONS)); err == nil {
		db.SetMaxOpenConns(m)
	}

	return gormDB, nil
}

// New migrates the schema and returns the repository.
func New(db *gorm.DB) (*service, error) {
	if err := db.AutoMigrate(Book{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &service{db: db}, nil
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	db, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	if err := db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
