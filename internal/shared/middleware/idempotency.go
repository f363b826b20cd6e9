package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"

	idempotencyKeyPrefix  = "payflow:idempotency:"
	idempotencyLockTTL    = 30 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// cachedResponse is the response replayed for a repeated idempotency key.
type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for requests that repeat an
// Idempotency-Key. Requests without the header, or without Redis, pass through.
func Idempotency(redis goredis.UniversalClient, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if redis == nil || key == "" || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(c, key)

		if resp, err := loadResponse(ctx, redis, cacheKey); err == nil {
			c.Data(resp.StatusCode, resp.ContentType, resp.Body)
			c.Abort()
			return
		}

		lockKey := cacheKey + ":lock"
		locked, err := redis.SetNX(ctx, lockKey, "1", idempotencyLockTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !locked {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    "REQUEST_IN_PROGRESS",
					"message": "a request with this idempotency key is already being processed",
				},
			})
			return
		}
		defer redis.Del(context.WithoutCancel(ctx), lockKey)

		w := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		if status := w.Status(); status >= 200 && status < 500 {
			storeResponse(context.WithoutCancel(ctx), redis, cacheKey, &cachedResponse{
				StatusCode:  status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        w.body.Bytes(),
			}, ttl)
		}
	}
}

func idempotencyCacheKey(c *gin.Context, key string) string {
	hash := sha256.Sum256([]byte(c.Request.Method + ":" + c.FullPath() + ":" + key))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

func loadResponse(ctx context.Context, redis goredis.UniversalClient, key string) (*cachedResponse, error) {
	data, err := redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var resp cachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func storeResponse(ctx context.Context, redis goredis.UniversalClient, key string, resp *cachedResponse, ttl time.Duration) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	redis.Set(ctx, key, data, ttl)
}
