package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/librarease/catalog/internal/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// An unreachable redis must degrade to cache misses, never to errors.
func TestRedisCache_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCache(client, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer c.Close()

	ctx := context.Background()

	books, generation, ok := c.GetTopRated(ctx)
	assert.False(t, ok)
	assert.Nil(t, books)
	assert.Equal(t, unknownGeneration, generation, "an unread generation never allows a write")

	assert.NotPanics(t, func() {
		c.SetTopRated(ctx, generation, []usecase.Book{{Title: "Dune"}})
		c.SetTopRated(ctx, 0, []usecase.Book{{Title: "Dune"}})
		c.InvalidateTopRated(ctx)
	})
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestParseGeneration(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{"never invalidated", nil, 0, false},
		{"counter", "42", 42, false},
		{"garbage", "forty-two", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGeneration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
