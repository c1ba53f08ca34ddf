package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream answers with its own name and echoes the path and request id it received.
func upstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-Request-Id", r.Header.Get(httpx.RequestIDHeader))
		_, _ = io.WriteString(w, r.Method+" "+r.URL.RequestURI())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := runtime.NewRouter()
	require.NoError(t, registerRoutes(router, cfg, logger))
	return httpx.Chain(router, httpx.WithRequestID)
}

func TestRoutesToUpstreams(t *testing.T) {
	salon := upstream(t, "salon")
	booking := upstream(t, "booking")
	gw := newGateway(t, Config{SalonURL: salon.URL, BookingURL: booking.URL})

	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/public/availability?salon_id=s1&service_id=x&date=2026-03-02", "booking"},
		{http.MethodPost, "/api/v1/public/bookings", "booking"},
		{http.MethodGet, "/api/v1/online-bookings", "booking"},
		{http.MethodPost, "/api/v1/online-bookings/ob-1/approve", "booking"},
		{http.MethodPost, "/api/v1/appointments", "booking"},
		{http.MethodGet, "/api/v1/salon/profile", "salon"},
		{http.MethodPut, "/api/v1/salon/staff/st-1/working-hours", "salon"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.Equal(t, tc.want, rec.Header().Get("X-Upstream"), tc.path)
		assert.Equal(t, tc.method+" "+tc.path, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Seen-Request-Id"), "request id is forwarded")
	}

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	gw := newGateway(t, Config{SalonURL: dead.URL, BookingURL: dead.URL})

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/availability", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unavailable"`)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}

func TestOpenAPI(t *testing.T) {
	gw := newGateway(t, Config{SalonURL: "http://salon:8082", BookingURL: "http://booking:8083"})

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "openapi: 3"))
	assert.Contains(t, rec.Body.String(), "/api/v1/public/availability")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://book.example.com, https://admin.example.com")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("REQUEST_TIMEOUT", "3s")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://book.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 120, cfg.RateLimit.PerMinute)
	assert.True(t, cfg.RateLimit.FailOpen)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "http://booking-service:8083", cfg.BookingURL)

	t.Setenv("BOOKING_URL", "booking-service:8083")
	_, err = loadConfig()
	assert.ErrorContains(t, err, "BOOKING_URL")
}

func TestRateLimitAndCORS(t *testing.T) {
	booking := upstream(t, "booking")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := runtime.NewRouter()
	require.NoError(t, registerRoutes(router, Config{SalonURL: booking.URL, BookingURL: booking.URL}, logger))
	gw := httpx.Chain(router,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: []string{"https://book.example.com"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		}),
		httpx.NewRateLimiter(2, time.Minute).Middleware(),
	)

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/public/bookings", nil)
	preflight.Header.Set("Origin", "https://book.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://book.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type, Idempotency-Key", rec.Header().Get("Access-Control-Allow-Headers"))

	simple := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability", nil)
	simple.Header.Set("Origin", "https://book.example.com")
	rec = httptest.NewRecorder()
	gw.ServeHTTP(rec, simple)
	assert.Equal(t, "X-Request-Id, Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/availability", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes, "the simple CORS request spent a token")
}
