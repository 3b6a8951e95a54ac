package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"connectivity/internal/config"
)

func newLimitedRouter(ctx context.Context, cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(ctx, cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddleware_LimitsPerKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultConfig()
	cfg.RPS = 0.001
	cfg.Burst = 2
	cfg.Key = func(c *gin.Context) string { return c.GetHeader("X-Client") }
	router := newLimitedRouter(ctx, cfg)

	codes := func(client string, n int) []int {
		var out []int
		for i := 0; i < n; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Client", client)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			out = append(out, w.Code)
		}
		return out
	}

	assert.Equal(t, []int{200, 200, 429}, codes("a", 3))
	assert.Equal(t, []int{200}, codes("b", 1))
}

func TestStore_EvictsIdleBuckets(t *testing.T) {
	s := &store{limiters: make(map[string]*Limiter)}
	cfg := DefaultConfig()

	s.get("a", cfg)
	s.get("b", cfg)
	assert.Equal(t, 2, s.size())

	s.evict(time.Now().Add(time.Hour), time.Minute)
	assert.Equal(t, 0, s.size())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{RPS: 50, Burst: 100, CleanupInterval: 30, MaxAge: 60})
	assert.Equal(t, 50.0, cfg.RPS)
	assert.Equal(t, 100, cfg.Burst)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.Equal(t, time.Minute, cfg.MaxAge)

	defaults := FromConfig(config.RateLimitConfig{})
	assert.Equal(t, DefaultConfig().Burst, defaults.Burst)
}
