package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func hit(h http.Handler, ip string) int {
	return hitRec(h, ip).Code
}

func hitRec(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability", nil)
	req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusNoContent, hit(h, "203.0.113.7"))
	assert.Equal(t, http.StatusNoContent, hit(h, "203.0.113.7"))
	denied := hitRec(h, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "30", denied.Header().Get("Retry-After"))
	assert.Contains(t, denied.Body.String(), `"kind":"rate_limited"`)
	assert.Equal(t, http.StatusNoContent, hit(h, "198.51.100.1"), "buckets are per client")

	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, hit(h, "203.0.113.7"))
}

func TestRateLimiter_SweepsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	rl.reserve("a")
	now = now.Add(time.Hour)
	rl.reserve("b")
	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewRedisRateLimiter(rdb, 2, time.Minute, "test").Middleware(nil, false)(okHandler())
	assert.Equal(t, http.StatusNoContent, hit(h, "203.0.113.7"))
	second := hitRec(h, "203.0.113.7")
	assert.Equal(t, http.StatusNoContent, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
	denied := hitRec(h, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "60", denied.Header().Get("Retry-After"))

	ttl := mr.TTL("test:203.0.113.7")
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusNoContent, hit(h, "203.0.113.7"))
}

func TestRedisRateLimiter_FailOpen(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "")
	require.Equal(t, "rl", rl.prefix)
	assert.Equal(t, http.StatusNoContent, hit(rl.Middleware(nil, true)(okHandler()), "203.0.113.7"))
	assert.Equal(t, http.StatusServiceUnavailable, hit(rl.Middleware(nil, false)(okHandler()), "203.0.113.7"))
}
