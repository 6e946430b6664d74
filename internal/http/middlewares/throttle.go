package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/cache"
	"github.com/taskhub/taskhub/internal/redisclient"
)

// Throttle rate limits the credential endpoints with a fixed window per
// client IP. When redis is configured the window is shared across
// instances; otherwise a per-process TTL cache is used.
type Throttle struct {
	limit  int
	window time.Duration
	rdb    *redisclient.Client

	mu       sync.Mutex
	fallback *cache.Cache
}

type windowBucket struct {
	count     int
	windowEnd time.Time
}

func NewThrottle(limit int, window time.Duration, rdb *redisclient.Client) *Throttle {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &Throttle{
		limit:    limit,
		window:   window,
		rdb:      rdb,
		fallback: cache.New(window),
	}
}

// Middleware returns a gin.HandlerFunc that enforces the limit for a derived key

func (t *Throttle) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "throttle:" + c.FullPath() + ":" + c.ClientIP()

		if !t.allow(c, key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many attempts.",
			})
			return
		}

		c.Next()
	}
}

func (t *Throttle) allow(c *gin.Context, key string) bool {
	if t.rdb != nil {
		count, err := t.rdb.IncrWindow(c.Request.Context(), key, t.window)

		// redis trouble must not lock everyone out
		if err == nil {
			return count <= int64(t.limit)
		}
	}

	return t.allowLocal(key)
}

func (t *Throttle) allowLocal(key string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var b *windowBucket

	if v, ok := t.fallback.Get(key); ok {
		b, _ = v.(*windowBucket)
	}

	if b == nil || now.After(b.windowEnd) {
		b = &windowBucket{count: 0, windowEnd: now.Add(t.window)}
		t.fallback.Set(key, b)
	}

	b.count++

	return b.count <= t.limit
}
