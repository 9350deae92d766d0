package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hilthontt/quadchat/internal/application/chat"
	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/bus"
	"github.com/hilthontt/quadchat/internal/infrastructure/configs"
	"github.com/hilthontt/quadchat/internal/infrastructure/events"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/messaging"
	"github.com/hilthontt/quadchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quadchat/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/quadchat/internal/infrastructure/registry"
	"github.com/hilthontt/quadchat/internal/infrastructure/repository"
	"github.com/hilthontt/quadchat/internal/infrastructure/tracing"
	"github.com/hilthontt/quadchat/internal/infrastructure/ws"
	"github.com/hilthontt/quadchat/internal/persistence/db"
	auditRepository "github.com/hilthontt/quadchat/internal/persistence/repository"
	"github.com/hilthontt/quadchat/internal/presentation/api"
	"github.com/hilthontt/quadchat/internal/presentation/handler/health"
	"github.com/hilthontt/quadchat/internal/presentation/handler/messages"
	"github.com/hilthontt/quadchat/internal/presentation/handler/rooms"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const serviceName = "quadchat"

func main() {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg, err := configs.Load(configs.DetermineConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logger.FilePath,
		Encoding: cfg.Logger.Encoding,
		Level:    cfg.Logger.Level,
		Logger:   cfg.Logger.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(logging.General, logging.Startup, "server exited with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}

func run(ctx context.Context, cfg *configs.Config, logger logging.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(ctx, tracing.Config{
			ServiceName: serviceName,
			Environment: cfg.Tracing.Environment,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
		logger.Info(logging.Tracing, logging.Startup, "tracing enabled", map[logging.ExtraKey]any{
			"Exporter": cfg.Tracing.Exporter,
		})
	}

	m := metrics.NewMetrics()
	checks := map[string]health.Check{}

	// Redis backs the room store, the event bus and the shared rate limiter buckets.
	var rdb *redis.Client
	if cfg.Store.Driver == "redis" {
		client, err := db.NewRedisClient(ctx, db.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return err
		}
		rdb = client
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	store, err := openStore(cfg, rdb)
	if err != nil {
		return err
	}

	reg := registry.New(store, registry.Options{
		Backend:      cfg.Store.Driver,
		Retention:    cfg.Rooms.Retention,
		StoreTimeout: cfg.Registry.StoreTimeout,
		MaxRetries:   cfg.Registry.MaxRetries,
	}, logger, m)
	defer reg.Close()

	core := ws.NewCore(logger, m)
	go core.Run(ctx)

	// Local connections hear about changes either straight from the service or,
	// with the bus on, from the bus so every process sees the same stream.
	var notifiers chat.Notifiers
	if cfg.Broadcast.RedisBus {
		redisBus := bus.NewRedisBus(rdb, logger)
		go func() {
			if err := redisBus.Subscribe(ctx, core); err != nil {
				logger.Error(logging.Redis, logging.Consume, "redis bus subscription ended", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}()
		notifiers = append(notifiers, redisBus)
	} else {
		notifiers = append(notifiers, core)
	}

	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			return err
		}
		defer rmq.Close()
		checks["rabbitmq"] = rmq.Check
		notifiers = append(notifiers, events.NewRoomPublisher(rmq, logger))

		if cfg.Audit.Enabled {
			closeAudit, err := startAuditConsumer(ctx, cfg, rmq, logger, checks)
			if err != nil {
				return err
			}
			defer closeAudit()
		}
	}

	service := chat.NewService(reg, notifiers, logger, m, chat.Options{
		AllowAnonymous:   cfg.Rooms.AllowAnonymous,
		MaxMessageLength: cfg.Rooms.MaxMessageLength,
	})

	var buckets ratelimiter.BucketStore
	if rdb != nil {
		buckets = ratelimiter.NewRedisStore(rdb, cfg.Store.Redis.KeyPrefix)
	} else {
		buckets = ratelimiter.NewMemoryStore(time.Minute)
	}
	defer buckets.Close()
	limiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		Store:            buckets,
		TTL:              cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
		Logger:           logger,
	})

	throttle := ratelimiter.NewFixedWindowRateLimiter(cfg.RateLimiter.WSMessagesPerSecond, time.Second)
	defer throttle.Close()

	app := api.NewApplication(
		*cfg,
		rooms.NewHandler(service, core, throttle, logger, rooms.Options{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			SecureCookies:  cfg.HTTP.SecureCookies,
		}),
		health.NewHandler(checks),
		messages.NewHandler(service, logger),
		logger,
		limiter,
		m,
	)

	logger.Info(logging.General, logging.Startup, "starting quadchat", map[logging.ExtraKey]any{
		logging.Backend: cfg.Store.Driver,
		"RedisBus":      cfg.Broadcast.RedisBus,
		"RabbitMQ":      cfg.RabbitMQ.Enabled,
		"Audit":         cfg.Audit.Enabled,
	})

	return app.Run(ctx, app.Mount())
}

func openStore(cfg *configs.Config, rdb *redis.Client) (domain.RoomStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		return repository.NewRedisRoomRepository(rdb, cfg.Store.Redis.KeyPrefix), nil
	case "badger":
		bdb, err := db.OpenBadger(cfg.Store.Badger.Path)
		if err != nil {
			return nil, err
		}
		return repository.NewBadgerRoomRepository(bdb), nil
	default:
		return repository.NewRoomRepository(cfg.Rooms.JanitorInterval), nil
	}
}

func startAuditConsumer(
	ctx context.Context,
	cfg *configs.Config,
	rmq *messaging.RabbitMQ,
	logger logging.Logger,
	checks map[string]health.Check,
) (func(), error) {
	mongo, err := db.NewMongo(ctx, db.MongoConfig{
		URI:      cfg.Audit.MongoURI,
		Database: cfg.Audit.Database,
	}, logger)
	if err != nil {
		return nil, err
	}
	closeFn := func() { _ = mongo.Close(context.Background()) }

	audit := auditRepository.NewRoomAuditLogRepository(mongo.Database(), cfg.Audit.Retention)
	if err := audit.EnsureIndexes(ctx); err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to ensure audit indexes: %w", err)
	}

	if err := events.NewRoomConsumer(rmq, audit, logger).Listen(); err != nil {
		closeFn()
		return nil, err
	}
	checks["mongodb"] = mongo.Ping

	return closeFn, nil
}
