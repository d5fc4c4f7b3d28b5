package api

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/timezone"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	report_cache_get = "cache.get"
	report_cache_set = "cache.set"
	report_cache_hit = "cache.hit"
)

// ErrCacheMiss is returned by Cache.Get when nothing is stored under a key.
var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache stores responses in redis for `ttl`, defaulting to five
// minutes.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return RedisCache{rdb: rdb, ttl: ttl, prefix: "cinemas"}
}

func (c RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.rdb.Get(ctx, c.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return value, err
}

func (c RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.SetEx(ctx, c.prefix+":"+key, value, c.ttl).Err()
}

type cachedResponse struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// cacheKey includes the London date so that routes relative to "today"
// never outlive midnight.
func cacheKey(c echo.Context, today string) string {
	sum := sha1.Sum([]byte(c.Path() + "?" + c.Request().URL.RawQuery))
	return fmt.Sprintf("route:%s:%x", today, sum[:])
}

// CacheMiddleware answers GET requests from `cache` and stores successful
// responses in it. Cache failures are reported and otherwise ignored.
func CacheMiddleware(cache Cache, time chrono.API, tel telemetry.API) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}

			ctx := c.Request().Context()
			key := cacheKey(c, timezone.Date(time.Now()))

			payload, err := cache.Get(ctx, key)
			switch {
			case err == nil:
				var cached cachedResponse
				err = json.Unmarshal(payload, &cached)
				if err == nil {
					tel.ReportCount(report_cache_hit, 1)
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(http.StatusOK, cached.ContentType, cached.Body)
				}
				tel.ReportWarning(report_cache_get, key, err)
			case !errors.Is(err, ErrCacheMiss):
				tel.ReportWarning(report_cache_get, key, err)
			}

			w := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = w
			c.Response().Header().Set("X-Cache", "MISS")

			err = next(c)
			if err != nil {
				return err
			}
			if w.status != http.StatusOK {
				return nil
			}

			payload, err = json.Marshal(cachedResponse{
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        w.buf.Bytes(),
			})
			if err == nil {
				err = cache.Set(context.WithoutCancel(ctx), key, payload)
			}
			if err != nil {
				tel.ReportWarning(report_cache_set, key, err)
			}
			return nil
		}
	}
}
