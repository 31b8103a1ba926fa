package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"audio-blinkshot/internal/domain"
)

const rateLimitMessage = "Rate limit exceeded. Please add your own API key for unlimited generations."

type ImageGenerator interface {
	Generate(ctx context.Context, apiKey, prompt string) (domain.ImageResult, error)
}

// Limiter is the per-client generation budget.
type Limiter interface {
	Consume(ctx context.Context, id string) (bool, error)
	Remaining(ctx context.Context, id string) (int, error)
}

type GenerateRequest struct {
	Prompt   string
	APIKey   string
	ClientID string
}

// GenerationService proxies image generation. Callers bringing their own
// credential bypass the limiter.
type GenerationService struct {
	images    ImageGenerator
	limiter   Limiter
	serverKey string
	logger    *slog.Logger
}

func NewGenerationService(images ImageGenerator, limiter Limiter, serverKey string, logger *slog.Logger) *GenerationService {
	return &GenerationService{
		images:    images,
		limiter:   limiter,
		serverKey: strings.TrimSpace(serverKey),
		logger:    logger,
	}
}

// Generate returns a loadable URL for the generated image.
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", domain.ValidationError("Prompt is required")
	}

	callerKey := strings.TrimSpace(req.APIKey)
	apiKey := callerKey
	if apiKey == "" {
		apiKey = s.serverKey
	}
	if apiKey == "" {
		s.logger.Error("image generation requested without any credential")
		return "", domain.ConfigurationError("API key not configured")
	}

	if callerKey == "" {
		allowed, err := s.limiter.Consume(ctx, req.ClientID)
		if err != nil {
			s.logger.Error("consulting rate limiter", "error", err, "client", req.ClientID)
			return "", domain.TransportError("Internal server error", err)
		}
		if !allowed {
			return "", domain.RateLimitError(rateLimitMessage)
		}
	}

	s.logger.Info("generating image", "prompt", preview(req.Prompt, 50), "own_key", callerKey != "")

	result, err := s.images.Generate(ctx, apiKey, req.Prompt)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			de = domain.TransportError("Internal server error", err)
		}
		s.logger.Error("image generation failed", "error", err, "status", de.StatusCode())
		return "", de
	}

	url, ok := result.Location()
	if !ok {
		s.logger.Error("unexpected image response shape", "detail", result.Value)
		return "", domain.UpstreamError(0, "No image URL in response", errors.New(result.Value))
	}

	s.logger.Info("image generated", "inline", result.Kind == domain.ImageInline)
	return url, nil
}

// Remaining reports the unused budget of a client without consuming any.
func (s *GenerationService) Remaining(ctx context.Context, clientID string) (int, error) {
	remaining, err := s.limiter.Remaining(ctx, clientID)
	if err != nil {
		s.logger.Error("reading remaining budget", "error", err, "client", clientID)
		return 0, domain.TransportError("Internal server error", err)
	}
	return remaining, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
