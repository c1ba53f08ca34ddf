package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/inbox"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/salon"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Service        string        `env:"SERVICE_NAME" envDefault:"booking-service"`
	Port           string        `env:"PORT" envDefault:"8083"`
	SalonGRPCAddr  string        `env:"SALON_GRPC_ADDR" envDefault:"salon-service:9090"`
	SalonTimeout   time.Duration `env:"SALON_CALL_TIMEOUT" envDefault:"3s"`
	ConfigCacheTTL time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"10m"`
	GroupID        string        `env:"KAFKA_GROUP_ID" envDefault:"booking-service"`

	Tracing otelx.Config
	config.Postgres
	config.Kafka
	config.Redis
}

func (c Config) Validate() error {
	return config.CheckPort("PORT", c.Port)
}

func main() {
	_ = runtime.LoadDotenv()
	cfg, err := config.Load[Config]()
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

	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, storage.Migrations, storage.MigrationsDir)
	if err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "files", applied)
	}

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.Kafka.Brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var cache *salon.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		cache = salon.NewCache(rdb, cfg.ConfigCacheTTL)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("salon config cache enabled", "redis_addr", cfg.Redis.Addr, "ttl", cfg.ConfigCacheTTL)
	}

	conn, err := grpcx.NewClient(cfg.SalonGRPCAddr, grpcx.ClientOptions{})
	if err != nil {
		logger.Error("salon-service client failed", "err", err, "addr", cfg.SalonGRPCAddr)
		panic(err)
	}
	defer func() { _ = conn.Close() }()
	checks = append(checks, runtime.ReadyCheck{Name: "salon-service", Check: grpcx.ReadyCheck(conn)})
	salons := salon.NewProvider(salonapi.NewClient(conn), cache, logger, salon.Options{CallTimeout: cfg.SalonTimeout})

	if cfg.Kafka.Brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Kafka.Brokers)})
		if cache != nil {
			inboxRepo := inbox.NewRepository(pool)
			go inboxRepo.RunPruner(ctx, logger, 7*24*time.Hour, 6*time.Hour)
			consumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				GroupID: cfg.GroupID,
				Topic:   salon.EventConfigChanged,
			}, salon.InvalidateOnChange(cache, logger))
			go consumer.Run(ctx)
		}
	}

	router := runtime.NewRouter(checks...)
	handlers.New(repo, salons, logger).Routes(router)

	handler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "booking")
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
