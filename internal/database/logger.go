package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/librarease/catalog/internal/config"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowQuery = 200 * time.Millisecond

// SlogGormLogger sends gorm's query log to slog. Plain statements are
// logged at debug, slow ones at warn and failures at error.
type SlogGormLogger struct {
	Logger        *slog.Logger
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func NewSlogGormLogger(l *slog.Logger) *SlogGormLogger {
	level := logger.Warn
	switch os.Getenv(config.ENV_KEY_LOG_LEVEL) {
	case "DEBUG":
		level = logger.Info
	case "ERROR":
		level = logger.Error
	}

	slow := defaultSlowQuery
	if ms, err := strconv.Atoi(os.Getenv(config.ENV_KEY_DB_SLOW_QUERY_MS)); err == nil && ms > 0 {
		slow = time.Duration(ms) * time.Millisecond
	}

	return &SlogGormLogger{
		Logger:        l,
		LogLevel:      level,
		SlowThreshold: slow,
	}
}

func (l *SlogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

func (l *SlogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.Logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *SlogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.Logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *SlogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.Logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *SlogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)

	level := slog.LevelDebug
	msg := "sql"
	switch {
	// a miss is an answer, not a failure
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= logger.Error:
		level, msg = slog.LevelError, "sql_error"
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= logger.Warn:
		level, msg = slog.LevelWarn, "sql_slow"
	case l.LogLevel < logger.Info:
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("latency", elapsed),
		slog.String("source", utils.FileWithLineNum()),
	}
	if level == slog.LevelError {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	l.Logger.LogAttrs(ctx, level, msg, attrs...)
}
