package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSlogGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "SELECT * FROM books", 3 }

	tests := []struct {
		name    string
		level   logger.LogLevel
		begin   time.Time
		err     error
		wantMsg string
	}{
		{"failure", logger.Warn, time.Now(), errors.New("relation does not exist"), "sql_error"},
		{"miss is quiet", logger.Warn, time.Now(), gorm.ErrRecordNotFound, ""},
		{"slow", logger.Warn, time.Now().Add(-time.Second), nil, "sql_slow"},
		{"fast below info", logger.Warn, time.Now(), nil, ""},
		{"fast at info", logger.Info, time.Now(), nil, "sql"},
		{"silent", logger.Silent, time.Now(), errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := &SlogGormLogger{
				Logger:        slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
				LogLevel:      tt.level,
				SlowThreshold: defaultSlowQuery,
			}

			l.Trace(context.Background(), tt.begin, query, tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, buf.Len(), buf.String())
				return
			}
			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tt.wantMsg, rec["msg"])
			assert.Equal(t, "SELECT * FROM books", rec["sql"])
			assert.EqualValues(t, 3, rec["rows"])
		})
	}
}

func TestNewSlogGormLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DB_SLOW_QUERY_MS", "50")

	l := NewSlogGormLogger(slog.Default())

	assert.Equal(t, logger.Info, l.LogLevel)
	assert.Equal(t, 50*time.Millisecond, l.SlowThreshold)
	assert.Equal(t, logger.Silent, l.LogMode(logger.Silent).(*SlogGormLogger).LogLevel)
	assert.Equal(t, logger.Info, l.LogLevel, "LogMode returns a copy")
}
