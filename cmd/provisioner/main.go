package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cachestore "github.com/docindex-go/internal/provisioner/adapters/cache"
	"github.com/docindex-go/internal/provisioner/adapters/db"
	esstore "github.com/docindex-go/internal/provisioner/adapters/elasticsearch"
	"github.com/docindex-go/internal/provisioner/adapters/http/handlers"
	"github.com/docindex-go/internal/provisioner/adapters/memory"
	"github.com/docindex-go/internal/provisioner/adapters/publisher"
	"github.com/docindex-go/internal/provisioner/app/bootstrap"
	"github.com/docindex-go/internal/provisioner/app/scheduler"
	"github.com/docindex-go/internal/provisioner/app/service"
	"github.com/docindex-go/internal/provisioner/metadata"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/internal/provisioner/server"
	"github.com/docindex-go/pkg/cache"
	"github.com/docindex-go/pkg/config"
	"github.com/docindex-go/pkg/database"
	"github.com/docindex-go/pkg/events"
	"github.com/docindex-go/pkg/logger"
	"github.com/docindex-go/pkg/telemetry"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load("provisioner")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 2
	}

	// Initialize logger
	log := logger.New(cfg.Logger.ToLoggerConfig())
	defer func() { _ = log.Sync() }()

	tel, err := telemetry.New(cfg.Telemetry.ToTelemetryConfig())
	if err != nil {
		log.Error("Failed to initialize telemetry", "error", err)
		return 2
	}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("Failed to release resource", "error", err)
			}
		}
	}()
	closers = append(closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Close(ctx)
	})

	client, closeStore, err := newStoreClient(cfg, log)
	if err != nil {
		log.Error("Failed to initialize store", "backend", cfg.Provisioner.Backend, "error", err)
		return 2
	}
	closers = append(closers, closeStore)

	var redisClient *redis.Client
	if cfg.Provisioner.Cache.Enabled || cfg.Provisioner.Lock.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		closers = append(closers, redisClient.Close)
	}

	if cfg.Provisioner.Cache.Enabled {
		redisCache := cache.NewRedisCache(redisClient, &cache.Options{
			DefaultTTL: cfg.Provisioner.Cache.TTL,
			Namespace:  "docindex",
		})
		client = cachestore.NewStore(client, redisCache, cfg.Provisioner.Cache.TTL, log.Named("cache"))
	}

	provOptions := []service.Option{service.WithTelemetry(tel)}
	if cfg.Kafka.Enabled {
		bus, err := events.NewKafkaEventBus(cfg.Kafka.ToKafkaConfig())
		if err != nil {
			log.Error("Failed to create event bus", "error", err)
			return 2
		}
		closers = append(closers, bus.Close)
		provOptions = append(provOptions, service.WithPublisher(publisher.NewEventPublisher(bus)))
	}

	opts := service.Options{
		CallTimeout: cfg.Provisioner.CallTimeout,
		Retry:       cfg.Provisioner.Retry.ToRetryConfig(),
		Breaker:     cfg.Provisioner.Breaker.ToBreakerConfig(),
		CreateRate:  cfg.Provisioner.CreateRate,
		CreateBurst: cfg.Provisioner.CreateBurst,
	}
	prov := service.NewProvisioner(opts, log.Named("provisioner"), provOptions...)

	runner := bootstrap.NewRunner(
		metadata.NewFileSupplier(cfg.Provisioner.Manifest, metadata.WithDialect(metadata.DialectFor(cfg.Provisioner.Backend))),
		prov,
		client,
		bootstrap.Policy{
			RequirePrimary: cfg.Provisioner.RequirePrimary,
			Timeout:        cfg.Provisioner.RunTimeout,
		},
		log.Named("bootstrap"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Provisioning indexes", "backend", cfg.Provisioner.Backend, "manifest", cfg.Provisioner.Manifest)
	report, err := runner.Run(ctx)
	if err != nil {
		log.Error("Index provisioning failed", "error", err)
		if !cfg.Provisioner.Serve || !errors.Is(err, bootstrap.ErrMandatoryFailed) {
			return 1
		}
	} else {
		log.Info("Indexes provisioned", "outcomes", len(report.Outcomes), "duration", report.Duration())
	}

	if !cfg.Provisioner.Serve {
		return 0
	}

	var schedOptions []scheduler.Option
	if cfg.Provisioner.Lock.Enabled {
		schedOptions = append(schedOptions, scheduler.WithLock(
			scheduler.NewLock(redisClient, cfg.Provisioner.Lock.Key, cfg.Provisioner.Lock.TTL),
		))
	}
	sched, err := scheduler.NewScheduler(cfg.Provisioner.Schedule, runner, log.Named("scheduler"), schedOptions...)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 2
	}

	h := handlers.NewProvisionerHandlers(runner, prov, log)
	srv := server.New(cfg, h, sched, tel, log)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("Server stopped", "error", err)
			return 1
		}
	}

	log.Info("Shutting down provisioner...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Provisioner exited")
	return 0
}

func newStoreClient(cfg *config.Config, log logger.Logger) (ports.StoreClient, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provisioner.Backend {
	case "memory":
		return memory.NewStore(), noop, nil

	case "sql":
		conn, err := database.New(cfg.Database.ToDatabaseConfig(), log.Named("database"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db.NewStore(conn), conn.Close, nil

	case "elasticsearch":
		es, err := elasticsearch.NewClient(cfg.Elasticsearch.ToClientConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
		}
		return esstore.NewStore(es), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Provisioner.Backend)
	}
}
