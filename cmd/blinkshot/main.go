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

	"audio-blinkshot/config"
	"audio-blinkshot/internal/application"
	"audio-blinkshot/internal/domain"
	"audio-blinkshot/internal/infra/audio"
	"audio-blinkshot/internal/infra/credstore"
	"audio-blinkshot/internal/infra/proxyclient"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment when empty)")
	apiKey := flag.String("api-key", "", "save your own Together AI key for unlimited generations")
	clearKey := flag.Bool("clear-key", false, "remove the saved API key")
	mood := flag.String("mood", "", "image style (Hyperrealism, Anime, Pixel Art, Portrait, Artistic, Minimal, Random)")
	file := flag.String("file", "", "replay a WAV file instead of recording from the microphone")
	duration := flag.Duration("duration", 0, "stop recording after this long (0 records until interrupted)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *mood != "" {
		cfg.Client.Mood = *mood
	}
	if *file != "" {
		cfg.Client.Source = "file"
		cfg.Client.File = *file
	}
	if err := cfg.ValidateClient(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := newRecorder(cfg, logger)
	if err != nil {
		logger.Error("creating recorder", "error", err)
		os.Exit(1)
	}

	if err := recorder.LoadCredential(ctx); err != nil {
		logger.Warn("ignoring stored credential", "error", err)
	}

	switch {
	case *clearKey:
		if err := recorder.SaveCredential(ctx, ""); err != nil {
			logger.Error("removing API key", "error", err)
			os.Exit(1)
		}
		logger.Info("API key removed")
		return
	case *apiKey != "":
		if err := recorder.SaveCredential(ctx, *apiKey); err != nil {
			logger.Error("saving API key", "error", err)
			os.Exit(1)
		}
		logger.Info("API key saved")
	}

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("recording, press Ctrl+C to stop",
		"source", cfg.Client.Source,
		"server", cfg.Client.ServerURL,
		"mood", cfg.Client.Mood,
	)

	err = recorder.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("recording failed", "error", err)
		os.Exit(1)
	}

	session := recorder.Session()
	logger.Info("session finished", "transcript", session.Transcript(), "images", len(session.Images()))
	for _, img := range session.Images() {
		logger.Info("image", "id", img.ID, "url", img.URL, "at", img.Timestamp.Format(time.RFC3339))
	}
}

func newRecorder(cfg *config.Config, logger *slog.Logger) (*application.Recorder, error) {
	credentialsPath := cfg.Client.CredentialsPath
	if credentialsPath == "" {
		path, err := credstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		credentialsPath = path
	}

	mood, err := domain.ParseMood(cfg.Client.Mood)
	if err != nil {
		return nil, err
	}

	session := application.NewSession(cfg.Limiter.Limit)
	session.SetMood(mood)

	return application.NewRecorder(
		createCaptureSource(cfg.Client, logger),
		audio.EncodeWAV,
		proxyclient.NewClient(cfg.Client.ServerURL),
		credstore.NewFileStore(credentialsPath),
		session,
		application.NewLogNotifier(logger),
		application.RecorderConfig{
			TranscribeInterval: cfg.Client.TranscribeInterval,
			GenerateInterval:   cfg.Client.GenerateInterval,
			MinAudioBytes:      cfg.Client.MinAudioBytes,
			MinTranscriptChars: cfg.Client.MinTranscriptChars,
		},
		logger,
	), nil
}

func createCaptureSource(cfg config.ClientConfig, logger *slog.Logger) application.CaptureSource {
	switch cfg.Source {
	case "file":
		return audio.NewFileSource(cfg.File, cfg.ChunkInterval, cfg.Loop, logger)
	default:
		return audio.NewMicrophoneSource(cfg.SampleRate, cfg.ChunkInterval, logger)
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
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
