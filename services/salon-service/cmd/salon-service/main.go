package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/outbox"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/grpcserver"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/seed"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Service  string `env:"SERVICE_NAME" envDefault:"salon-service"`
	Port     string `env:"PORT" envDefault:"8082"`
	GRPCPort string `env:"GRPC_PORT" envDefault:"9090"`
	SeedFile string `env:"SEED_FILE"`

	Tracing otelx.Config
	config.Postgres
	config.Kafka
}

func (c Config) Validate() error {
	if err := config.CheckPort("PORT", c.Port); err != nil {
		return err
	}
	return config.CheckPort("GRPC_PORT", c.GRPCPort)
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

	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			logger.Error("seed file invalid", "err", err, "path", cfg.SeedFile)
			panic(err)
		}
		if err := seed.Apply(ctx, repo, f); err != nil {
			logger.Error("seed failed", "err", err, "salon_id", f.SalonID)
			panic(err)
		}
		logger.Info("seed applied", "salon_id", f.SalonID)
	}

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{Brokers: cfg.Kafka.Brokers})
	go publisher.Run(ctx)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.Kafka.Brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Kafka.Brokers)})
	}
	router := runtime.NewRouter(checks...)
	handlers.New(repo, logger).Routes(router)

	handler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "salon")
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

	grpcServer := grpcx.NewServer(logger)
	grpcserver.Register(grpcServer, repo)
	if err := grpcx.Serve(ctx, logger, grpcServer, ":"+cfg.GRPCPort); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
