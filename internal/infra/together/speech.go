// Package together talks to the Together AI speech and image endpoints.
package together

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"audio-blinkshot/internal/domain"
)

const (
	DefaultBaseURL     = "https://api.together.xyz/v1"
	TranscriptionModel = "openai/whisper-large-v3"
)

var tracer = otel.Tracer("audio-blinkshot/internal/infra/together")

// SpeechClient transcribes audio through Together's OpenAI-compatible
// transcription endpoint. It makes exactly one attempt per call.
type SpeechClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSpeechClient() *SpeechClient {
	return NewSpeechClientWithURL(DefaultBaseURL)
}

func NewSpeechClientWithURL(baseURL string) *SpeechClient {
	return &SpeechClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *SpeechClient) Transcribe(ctx context.Context, apiKey string, audio []byte, filename string) (string, error) {
	ctx, span := tracer.Start(ctx, "together.transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.Int("audio.bytes", len(audio)),
		attribute.String("model", TranscriptionModel),
	)

	if filename == "" {
		filename = "audio.wav"
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return "", classifySpeechError(err)
	}

	return resp.Text, nil
}

// classifySpeechError separates answers the upstream gave from failures to
// reach it at all.
func classifySpeechError(err error) error {
	if status := upstreamStatus(err); status != 0 {
		return domain.UpstreamError(status,
			fmt.Sprintf("Transcription failed: %d %s", status, http.StatusText(status)), err)
	}
	return domain.TransportError("Failed to transcribe audio", fmt.Errorf("calling transcription API: %w", err))
}

func upstreamStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode
	}
	return 0
}
