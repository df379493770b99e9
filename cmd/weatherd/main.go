// Command weatherd serves tomorrow's forecast for a configured set of
// cities over HTTP, fetching from api.met.no through the weatherproof
// resilience client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/haakond/weatherproof"
	"github.com/haakond/weatherproof/weather"
	"github.com/haakond/weatherproof/weatherapi"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := weather.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	service, metrics, err := buildService(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build weather service", zap.Error(err))
	}

	srv := weatherapi.NewServer(service, metrics, logger)
	runServer(srv, cfg.Server.Addr(), logger)
}

// buildLogger builds a zap logger from the logging configuration.
func buildLogger(cfg weather.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

// buildService wires the provider, cache store, metrics and resilience
// client into a weather service.
func buildService(cfg *weather.Config, logger *zap.Logger) (*weather.Service, *weatherproof.MetricsCollector, error) {
	cities, err := cfg.Cities()
	if err != nil {
		logger.Warn("invalid cities config, using defaults", zap.Error(err))
		cities = weather.DefaultCities()
	}

	provider, err := weather.NewProvider(cfg.Provider.BaseURL, cfg.Provider.CompanyWebsite, cities)
	if err != nil {
		return nil, nil, err
	}

	metrics := weatherproof.NewMetricsCollector()

	options := []weatherproof.Option{
		weatherproof.WithUserAgent(provider.UserAgent()),
		weatherproof.WithValidator(weather.ValidatePayload),
		weatherproof.WithTTL(cfg.Cache.TTL),
		weatherproof.WithLogger(weatherproof.NewZapLogger(logger)),
		weatherproof.WithMetricsCollector(metrics),
	}
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		options = append(options, weatherproof.WithStore(
			weatherproof.NewRedisStore(rdb, cfg.Cache.RedisKeyPrefix, 0)))
		logger.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
	}

	client := weatherproof.New(provider.BuildRequest, options...)
	if err := client.ValidateConfiguration(); err != nil {
		return nil, nil, err
	}

	cityIDs := make([]string, len(cities))
	for i, c := range cities {
		cityIDs[i] = c.ID
	}
	logger.Info("weather service configured",
		zap.String("version", weatherproof.Version),
		zap.Strings("cities", cityIDs),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.String("base_url", cfg.Provider.BaseURL),
	)

	return weather.NewService(client, provider, logger), metrics, nil
}

// runServer runs the HTTP server until a termination signal arrives,
// then shuts it down gracefully.
func runServer(srv *weatherapi.Server, addr string, logger *zap.Logger) {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.Run(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown did not complete cleanly", zap.Error(err))
	}
	logger.Info("server stopped")
}
