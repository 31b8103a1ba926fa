package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"audio-blinkshot/internal/domain"
)

// SpeechToText is the hosted transcription API. apiKey is always the server
// credential.
type SpeechToText interface {
	Transcribe(ctx context.Context, apiKey string, audio []byte, filename string) (string, error)
}

// TranscriptionService forwards one uploaded recording to the speech API
// using the server-held credential.
type TranscriptionService struct {
	stt    SpeechToText
	apiKey string
	logger *slog.Logger
}

func NewTranscriptionService(stt SpeechToText, apiKey string, logger *slog.Logger) *TranscriptionService {
	return &TranscriptionService{
		stt:    stt,
		apiKey: strings.TrimSpace(apiKey),
		logger: logger,
	}
}

func (s *TranscriptionService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", domain.ValidationError("No audio file provided")
	}
	if s.apiKey == "" {
		s.logger.Error("transcription requested without a server credential")
		return "", domain.ConfigurationError("Together AI API key not configured")
	}

	s.logger.Debug("forwarding audio for transcription", "bytes", len(audio), "filename", filename)

	text, err := s.stt.Transcribe(ctx, s.apiKey, audio, filename)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			de = domain.TransportError("Failed to transcribe audio", err)
		}
		s.logger.Error("transcription failed", "error", err, "status", de.StatusCode())
		return "", de
	}

	s.logger.Info("transcribed audio", "bytes", len(audio), "chars", len(text))
	return text, nil
}
