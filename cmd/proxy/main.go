package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/quadchat/internal/infrastructure/balancer"
	"github.com/hilthontt/quadchat/internal/infrastructure/configs"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/joho/godotenv"
)

func main() {
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

	if err := run(ctx, cfg.Proxy, logger); err != nil {
		logger.Fatal(logging.Balancer, logging.Startup, "proxy exited with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}

func run(ctx context.Context, cfg configs.ProxyConfig, logger logging.Logger) error {
	strategy, err := balancer.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	metrics := balancer.NewMetrics()
	lb, err := balancer.New(balancer.Config{
		Backends:            cfg.Backends,
		Strategy:            strategy,
		HealthCheckInterval: cfg.HealthCheckInterval,
		HealthCheckPath:     cfg.HealthCheckPath,
		MaxFailCount:        cfg.MaxFailCount,
	}, logger, metrics)
	if err != nil {
		return err
	}
	go lb.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/proxy/metrics", metrics.Handler())
	r.Handle("/*", lb)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(logging.Balancer, logging.Startup, "proxy listening", map[logging.ExtraKey]any{
			logging.HostIp: cfg.Listen,
			"Strategy":     strategy.String(),
			"Backends":     cfg.Backends,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info(logging.Balancer, logging.Shutdown, "proxy shutting down", nil)
	return srv.Shutdown(shutdownCtx)
}
