package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/librarease/catalog/internal/usecase"
	"github.com/redis/go-redis/v9"
)

const (
	topRatedKey   = "catalog:books:top_rated"
	generationKey = "catalog:books:top_rated:generation"
	DefaultTTL    = 5 * time.Minute
)

// unknownGeneration is reported when redis could not be read. Listings
// filled under it are never stored.
const unknownGeneration int64 = -1

var errStaleGeneration = errors.New("top rated generation moved")

type topRatedEntry struct {
	Generation int64          `json:"generation"`
	Books      []usecase.Book `json:"books"`
}

// RedisCache holds the best-rated listing. Every mutation that can move a
// book in or out of that listing bumps the generation counter; a listing
// is only written while the generation it was read under is current.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) GetTopRated(ctx context.Context) ([]usecase.Book, int64, bool) {
	vals, err := c.client.MGet(ctx, topRatedKey, generationKey).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "top rated cache read failed", slog.String("err", err.Error()))
		return nil, unknownGeneration, false
	}

	generation, err := parseGeneration(vals[1])
	if err != nil {
		c.logger.WarnContext(ctx, "top rated generation is corrupt", slog.String("err", err.Error()))
		return nil, unknownGeneration, false
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, generation, false
	}
	var entry topRatedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.WarnContext(ctx, "top rated cache entry is corrupt", slog.String("err", err.Error()))
		return nil, generation, false
	}
	if entry.Generation != generation {
		return nil, generation, false
	}
	return entry.Books, generation, true
}

func (c *RedisCache) SetTopRated(ctx context.Context, generation int64, books []usecase.Book) {
	if generation < 0 {
		return
	}
	raw, err := json.Marshal(topRatedEntry{Generation: generation, Books: books})
	if err != nil {
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, topRatedKey, raw, c.ttl)
			return nil
		})
		return err
	}, generationKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.logger.DebugContext(ctx, "top rated listing went stale while loading, not cached",
			slog.Int64("generation", generation))
	default:
		c.logger.WarnContext(ctx, "top rated cache write failed", slog.String("err", err.Error()))
	}
}

// InvalidateTopRated bumps the generation and drops the listing in one
// transaction.
func (c *RedisCache) InvalidateTopRated(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey)
		p.Del(ctx, topRatedKey)
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "top rated cache invalidation failed", slog.String("err", err.Error()))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func parseGeneration(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
