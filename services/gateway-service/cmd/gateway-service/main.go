package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec []byte

type Config struct {
	Service        string        `env:"SERVICE_NAME" envDefault:"gateway-service"`
	Port           string        `env:"PORT" envDefault:"8080"`
	SalonURL       string        `env:"SALON_URL" envDefault:"http://salon-service:8082"`
	BookingURL     string        `env:"BOOKING_URL" envDefault:"http://booking-service:8083"`
	BodyLimit      int64         `env:"REQUEST_BODY_LIMIT_BYTES" envDefault:"1048576"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	RateLimit struct {
		PerMinute int    `env:"PER_MINUTE" envDefault:"60"`
		Prefix    string `env:"PREFIX" envDefault:"rl"`
		FailOpen  bool   `env:"FAIL_OPEN" envDefault:"true"`
	} `envPrefix:"RATE_LIMIT_"`

	CORS struct {
		AllowedOrigins   []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
		AllowedMethods   []string      `env:"ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
		AllowedHeaders   []string      `env:"ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,X-Request-Id,X-Salon-Id,Idempotency-Key"`
		ExposedHeaders   []string      `env:"EXPOSED_HEADERS" envSeparator:"," envDefault:"X-Request-Id,Retry-After,X-RateLimit-Remaining"`
		AllowCredentials bool          `env:"ALLOW_CREDENTIALS" envDefault:"false"`
		MaxAge           time.Duration `env:"MAX_AGE" envDefault:"10m"`
	} `envPrefix:"CORS_"`

	Tracing otelx.Config
	config.Redis
}

func (c Config) Validate() error {
	if err := config.CheckPort("PORT", c.Port); err != nil {
		return err
	}
	for key, raw := range map[string]string{"SALON_URL": c.SalonURL, "BOOKING_URL": c.BookingURL} {
		if _, err := parseUpstream(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func main() {
	_ = runtime.LoadDotenv()
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Service, cfg.Tracing)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		checks      []runtime.ReadyCheck
		rateLimitMW httpx.Middleware
	)
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit.PerMinute, time.Minute, cfg.RateLimit.Prefix)
		rateLimitMW = rl.Middleware(logger, cfg.RateLimit.FailOpen)
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimit.PerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(cfg.RateLimit.PerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimit.PerMinute)
	}

	router := runtime.NewRouter(checks...)
	if err := registerRoutes(router, cfg, logger); err != nil {
		panic(err)
	}

	handler := httpx.Chain(router,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func loadConfig() (Config, error) {
	cfg, err := config.Load[Config]()
	if err != nil {
		return cfg, err
	}
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	cfg.CORS.AllowedMethods = trimAll(cfg.CORS.AllowedMethods)
	cfg.CORS.AllowedHeaders = trimAll(cfg.CORS.AllowedHeaders)
	cfg.CORS.ExposedHeaders = trimAll(cfg.CORS.ExposedHeaders)
	return cfg, nil
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func registerRoutes(r chi.Router, cfg Config, logger *slog.Logger) error {
	salonURL, err := parseUpstream(cfg.SalonURL)
	if err != nil {
		return err
	}
	bookingURL, err := parseUpstream(cfg.BookingURL)
	if err != nil {
		return err
	}
	salonProxy := newProxy(salonURL, "salon-service", logger)
	bookingProxy := newProxy(bookingURL, "booking-service", logger)

	registerProxy(r, "/api/v1/salon", salonProxy)
	registerProxy(r, "/api/v1/public", bookingProxy)
	registerProxy(r, "/api/v1/online-bookings", bookingProxy)
	registerProxy(r, "/api/v1/appointments", bookingProxy)

	r.Get("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openAPISpec)
	})
	return nil
}

func newProxy(target *url.URL, name string, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed", "err", err, "upstream", name, "path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteErrorBody(w, http.StatusBadGateway, httpx.ErrorBody{
			Error:     name + " unavailable",
			Kind:      httpx.KindUnavailable,
			Retryable: true,
		})
	}
	return proxy
}

// registerProxy routes prefix and everything below it to handler.
func registerProxy(r chi.Router, prefix string, handler http.Handler) {
	prefix = strings.TrimSuffix(prefix, "/")
	r.Handle(prefix, handler)
	r.Handle(prefix+"/*", handler)
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute http(s) URL", raw)
	}
	return u, nil
}
