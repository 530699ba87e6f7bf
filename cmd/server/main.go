package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"reservly/internal/api"
	"reservly/internal/booking"
	"reservly/internal/calendar"
	"reservly/internal/config"
	"reservly/internal/database"
	"reservly/internal/events"
	"reservly/internal/logging"
	"reservly/internal/metrics"
	"reservly/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	calendarClient, err := initCalendar(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	metrics.Register()

	retryPolicy := worker.RetryPolicy{
		InitialDelay:  time.Duration(cfg.Worker.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.Worker.MaxDelayMinutes) * time.Minute,
		BackoffFactor: 2,
	}
	syncWorker := worker.NewCalendarWorker(db, calendarClient, redisClient, retryPolicy, &logger)
	syncWorker.Tune(worker.Tuning{
		PollInterval:  time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
		CallTimeout:   time.Duration(cfg.Worker.CallTimeoutSeconds) * time.Second,
		LeaseDuration: time.Duration(cfg.Worker.LeaseMinutes) * time.Minute,
		ReclaimEvery:  time.Duration(cfg.Worker.ReclaimEverySeconds) * time.Second,
		MaxAttempts:   cfg.Worker.MaxAttempts,
	})
	if calendarClient != nil {
		go syncWorker.Start(ctx)
	}

	eventBus := events.NewBus(&logger)
	events.SubscribeCustomerStats(eventBus, db, &logger)

	bookingService := booking.NewService(db, syncWorker, eventBus, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		go startPrometheus(cfg.Monitoring.PrometheusPort, &logger)
	}

	apiServer := api.NewHTTPServer(cfg, bookingService, syncWorker, db, &logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown error")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, worker falls back to polling")
	}
	return client
}

func initCalendar(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (calendar.Client, error) {
	if !cfg.Google.Enabled {
		logger.Info().Msg("google sync disabled, queue tasks will wait")
		return nil, nil
	}

	client, err := calendar.NewGoogleClient(ctx, cfg.Google.CredentialsFile)
	if err != nil {
		logger.Error().Err(err).Msg("init google calendar")
		return nil, err
	}
	logger.Info().Msg("google calendar client initialized")
	return client, nil
}

func startPrometheus(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("prometheus metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("prometheus server error")
	}
}
