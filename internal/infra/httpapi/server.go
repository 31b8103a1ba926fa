// Package httpapi serves the transcription and image generation proxies
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"audio-blinkshot/internal/application"
)

const instrumentationName = "audio-blinkshot/internal/infra/httpapi"

// Transcriber turns one uploaded recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Generator produces images and reports the remaining budget per client.
type Generator interface {
	Generate(ctx context.Context, req application.GenerateRequest) (string, error)
	Remaining(ctx context.Context, clientID string) (int, error)
}

type Options struct {
	Addr              string
	Production        bool
	MaxBodyBytes      int64
	ThrottlePerMinute int
	ThrottleBurst     int
	AllowedOrigins    []string
	// TrustedProxies may set the throttle's client address from forwarding
	// headers. None are trusted when empty.
	TrustedProxies []string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// Meter defaults to the global meter provider.
	Meter metric.Meter
}

type Server struct {
	addr   string
	engine *gin.Engine
	logger *slog.Logger

	mu      sync.Mutex
	server  *http.Server
	running bool
}

func New(opts Options, transcriber Transcriber, generator Generator, logger *slog.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	instruments, err := newRequestMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("creating request metrics: %w", err)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("configuring trusted proxies: %w", err)
	}
	engine.Use(
		gin.Recovery(),
		requestLogger(logger),
		cors(opts.AllowedOrigins),
		instruments.middleware(),
	)

	h := &handlers{
		transcriber:  transcriber,
		generator:    generator,
		production:   opts.Production,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       logger,
	}

	// Transcription is never throttled: a rejected upload loses its audio.
	var limitGenerate gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if opts.ThrottlePerMinute > 0 {
		limitGenerate = newThrottle(opts.ThrottlePerMinute, opts.ThrottleBurst).middleware(logger)
	}

	register := func(r gin.IRoutes) {
		r.POST("/transcribe", h.transcribe)
		r.POST("/generate-image", limitGenerate, h.generateImage)
		r.GET("/limits", h.limits)
	}
	register(engine)
	register(engine.Group("/api"))

	engine.GET("/health", h.health)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	return &Server{
		addr:   opts.Addr,
		engine: engine,
		logger: logger,
	}, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP proxy server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}
