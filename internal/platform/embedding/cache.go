package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	if model == "" {
		model = "unknown"
	}
	return "graphload:embed:" + model + ":" + hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float32, len(values))
	copy(out, values)
	return out
}

// WithLRU memoizes embeddings in process. Overlapping chunks of re-runs hit it
// often. size or ttl <= 0 returns next unchanged.
func WithLRU(next Embedder, size int, ttl time.Duration) Embedder {
	if next == nil || IsUnavailable(next) || size <= 0 || ttl <= 0 {
		return next
	}
	return &lruEmbedder{next: next, cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

type lruEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(l.next.ModelName(), text)
	if cached, ok := l.cache.Get(key); ok {
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) Dimension() int    { return l.next.Dimension() }
func (l *lruEmbedder) ModelName() string { return l.next.ModelName() }

// RedisEmbedder shares embeddings across runs and workers. Cache errors are
// logged and fall through to the provider.
type RedisEmbedder struct {
	next Embedder
	rdb  *goredis.Client
	ttl  time.Duration
	log  *logger.Logger
}

func WithRedis(ctx context.Context, next Embedder, addr string, ttl time.Duration, log *logger.Logger) (*RedisEmbedder, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("embedding: redis ping %s: %w", addr, err)
	}
	return newRedisEmbedder(next, rdb, ttl, log), nil
}

func newRedisEmbedder(next Embedder, rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *RedisEmbedder {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisEmbedder{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (r *RedisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(r.next.ModelName(), text)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jErr := json.Unmarshal(raw, &vec); jErr == nil && len(vec) > 0 {
			return vec, nil
		}
	case !errors.Is(err, goredis.Nil):
		r.log.Warn("redis embedding cache read failed", "error", err)
	}

	res, err := r.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if b, jErr := json.Marshal(res); jErr == nil {
		if sErr := r.rdb.Set(ctx, key, b, r.ttl).Err(); sErr != nil {
			r.log.Warn("redis embedding cache write failed", "error", sErr)
		}
	}
	return res, nil
}

func (r *RedisEmbedder) Dimension() int    { return r.next.Dimension() }
func (r *RedisEmbedder) ModelName() string { return r.next.ModelName() }
func (r *RedisEmbedder) Close() error      { return r.rdb.Close() }
