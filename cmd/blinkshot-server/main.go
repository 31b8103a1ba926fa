package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"audio-blinkshot/config"
	"audio-blinkshot/internal/application"
	"audio-blinkshot/internal/infra/httpapi"
	"audio-blinkshot/internal/infra/ratelimit"
	"audio-blinkshot/internal/infra/telemetry"
	"audio-blinkshot/internal/infra/together"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment when empty)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Server.Environment, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	store, closeStore, err := openLimiterStore(ctx, cfg.Limiter, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := ratelimit.New(store, cfg.Limiter.Limit, cfg.Limiter.Window, logger)
	if err := limiter.Instrument(otel.Meter("audio-blinkshot/internal/infra/ratelimit")); err != nil {
		logger.Warn("rate limiter metrics disabled", "error", err)
	}
	if cfg.Limiter.PruneInterval > 0 {
		limiter.StartPruning(ctx, cfg.Limiter.PruneInterval)
	}

	if cfg.Together.APIKey == "" {
		logger.Warn("TOGETHER_API_KEY not set; transcription fails and generation requires caller keys")
	}

	transcription := application.NewTranscriptionService(
		together.NewSpeechClientWithURL(cfg.Together.BaseURL),
		cfg.Together.APIKey,
		logger,
	)
	generation := application.NewGenerationService(
		together.NewImageClientWithURL(cfg.Together.BaseURL),
		limiter,
		cfg.Together.APIKey,
		logger,
	)

	server, err := httpapi.New(httpapi.Options{
		Addr:              cfg.Server.Addr,
		Production:        cfg.Production(),
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ThrottlePerMinute: cfg.Server.ThrottlePerMinute,
		ThrottleBurst:     cfg.Server.ThrottleBurst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TrustedProxies:    cfg.Server.TrustedProxies,
		Metrics:           metricsHandler,
	}, transcription, generation, logger)
	if err != nil {
		return err
	}

	logger.Info("starting audio-blinkshot proxy",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"limiter", cfg.Limiter.Backend,
		"limit", limiter.Limit(),
		"window", limiter.Window(),
	)
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openLimiterStore(ctx context.Context, cfg config.LimiterConfig, logger *slog.Logger) (ratelimit.Store, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := ratelimit.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite rate limit store", "path", cfg.Path)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing rate limit store", "error", err)
			}
		}, nil
	default:
		return ratelimit.NewMemoryStore(), func() {}, nil
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
