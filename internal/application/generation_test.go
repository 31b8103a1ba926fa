package application_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"audio-blinkshot/internal/application"
	"audio-blinkshot/internal/domain"
)

type mockImageGenerator struct {
	mu     sync.Mutex
	calls  []string
	keys   []string
	result domain.ImageResult
	err    error
}

func (m *mockImageGenerator) Generate(_ context.Context, apiKey, prompt string) (domain.ImageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)
	m.keys = append(m.keys, apiKey)
	return m.result, m.err
}

type mockLimiter struct {
	allowed   bool
	remaining int
	err       error
	consumed  []string
}

func (m *mockLimiter) Consume(_ context.Context, id string) (bool, error) {
	m.consumed = append(m.consumed, id)
	return m.allowed, m.err
}

func (m *mockLimiter) Remaining(_ context.Context, _ string) (int, error) {
	return m.remaining, m.err
}

func TestGenerationService_MissingPrompt(t *testing.T) {
	images := &mockImageGenerator{}
	limiter := &mockLimiter{allowed: true}
	svc := application.NewGenerationService(images, limiter, "server-key", discardLogger())

	for _, prompt := range []string{"", "   "} {
		_, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: prompt, ClientID: "1.2.3.4"})
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("prompt %q: expected validation error, got %v", prompt, err)
		}
	}
	if len(images.calls) != 0 {
		t.Errorf("upstream calls: got %d, want 0", len(images.calls))
	}
	if len(limiter.consumed) != 0 {
		t.Errorf("limiter calls: got %d, want 0", len(limiter.consumed))
	}
}

func TestGenerationService_NoCredential(t *testing.T) {
	images := &mockImageGenerator{}
	svc := application.NewGenerationService(images, &mockLimiter{allowed: true}, "", discardLogger())

	_, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "a cat"})
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := domain.AsError(err).StatusCode(); got != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", got)
	}
}

func TestGenerationService_ServerKeyConsumesBudget(t *testing.T) {
	images := &mockImageGenerator{result: domain.ImageResult{Kind: domain.ImageURL, Value: "https://img/1.png"}}
	limiter := &mockLimiter{allowed: true}
	svc := application.NewGenerationService(images, limiter, "server-key", discardLogger())

	url, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "a cat", ClientID: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if url != "https://img/1.png" {
		t.Errorf("url: got %q", url)
	}
	if len(limiter.consumed) != 1 || limiter.consumed[0] != "1.2.3.4" {
		t.Errorf("consumed: got %v", limiter.consumed)
	}
	if images.keys[0] != "server-key" {
		t.Errorf("upstream key: got %q, want server-key", images.keys[0])
	}
}

func TestGenerationService_CallerKeyBypassesLimiter(t *testing.T) {
	images := &mockImageGenerator{result: domain.ImageResult{Kind: domain.ImageURL, Value: "https://img/1.png"}}
	limiter := &mockLimiter{allowed: false}
	svc := application.NewGenerationService(images, limiter, "", discardLogger())

	_, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "a cat", APIKey: "caller-key", ClientID: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(limiter.consumed) != 0 {
		t.Errorf("limiter consulted %d times with a caller key", len(limiter.consumed))
	}
	if images.keys[0] != "caller-key" {
		t.Errorf("upstream key: got %q, want caller-key", images.keys[0])
	}
}

func TestGenerationService_RateLimited(t *testing.T) {
	images := &mockImageGenerator{}
	svc := application.NewGenerationService(images, &mockLimiter{allowed: false}, "server-key", discardLogger())

	_, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "a cat", ClientID: "unknown"})
	de := domain.AsError(err)
	if de.StatusCode() != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want 429", de.StatusCode())
	}
	if de.Message != "Rate limit exceeded. Please add your own API key for unlimited generations." {
		t.Errorf("message: got %q", de.Message)
	}
	if len(images.calls) != 0 {
		t.Errorf("upstream called after rejection")
	}
}

func TestGenerationService_LimiterFailure(t *testing.T) {
	svc := application.NewGenerationService(&mockImageGenerator{}, &mockLimiter{err: errors.New("disk full")}, "server-key", discardLogger())

	_, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "a cat", ClientID: "x"})
	if !domain.IsKind(err, domain.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGenerationService_ResultShapes(t *testing.T) {
	tests := []struct {
		name       string
		result     domain.ImageResult
		wantURL    string
		wantStatus int
	}{
		{name: "url", result: domain.ImageResult{Kind: domain.ImageURL, Value: "https://x"}, wantURL: "https://x"},
		{name: "inline", result: domain.ImageResult{Kind: domain.ImageInline, Value: "QUJD"}, wantURL: "data:image/png;base64,QUJD"},
		{name: "malformed", result: domain.ImageResult{Kind: domain.ImageMalformed, Value: "no data"}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := &mockImageGenerator{result: tt.result}
			svc := application.NewGenerationService(images, &mockLimiter{allowed: true}, "k", discardLogger())

			url, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "p", ClientID: "c"})
			if tt.wantStatus != 0 {
				de := domain.AsError(err)
				if de.Kind != domain.KindUpstream || de.StatusCode() != tt.wantStatus {
					t.Fatalf("got kind %s status %d", de.Kind, de.StatusCode())
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if url != tt.wantURL {
				t.Errorf("url: got %q, want %q", url, tt.wantURL)
			}
		})
	}
}

func TestGenerationService_UpstreamErrorPassesThrough(t *testing.T) {
	images := &mockImageGenerator{err: domain.UpstreamError(402, "insufficient balance", nil)}
	svc := application.NewGenerationService(images, &mockLimiter{allowed: true}, "k", discardLogger())

	_, err := svc.Generate(context.Background(), application.GenerateRequest{Prompt: "p", ClientID: "c"})
	de := domain.AsError(err)
	if de.StatusCode() != 402 || de.Message != "insufficient balance" {
		t.Errorf("got %d %q", de.StatusCode(), de.Message)
	}
}

func TestGenerationService_Remaining(t *testing.T) {
	svc := application.NewGenerationService(&mockImageGenerator{}, &mockLimiter{remaining: 9}, "k", discardLogger())

	remaining, err := svc.Remaining(context.Background(), "c")
	if err != nil {
		t.Fatalf("Remaining error: %v", err)
	}
	if remaining != 9 {
		t.Errorf("remaining: got %d, want 9", remaining)
	}
}

type mockSpeech struct {
	calls int
	key   string
	text  string
	err   error
}

func (m *mockSpeech) Transcribe(_ context.Context, apiKey string, _ []byte, _ string) (string, error) {
	m.calls++
	m.key = apiKey
	return m.text, m.err
}

func TestTranscriptionService(t *testing.T) {
	t.Run("empty audio", func(t *testing.T) {
		stt := &mockSpeech{}
		svc := application.NewTranscriptionService(stt, "server-key", discardLogger())
		_, err := svc.Transcribe(context.Background(), nil, "a.wav")
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if stt.calls != 0 {
			t.Errorf("upstream calls: got %d", stt.calls)
		}
	})

	t.Run("missing server key", func(t *testing.T) {
		stt := &mockSpeech{}
		svc := application.NewTranscriptionService(stt, "", discardLogger())
		_, err := svc.Transcribe(context.Background(), []byte("RIFF"), "a.wav")
		if !domain.IsKind(err, domain.KindConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
		if stt.calls != 0 {
			t.Errorf("upstream calls: got %d", stt.calls)
		}
	})

	t.Run("forwards with server key", func(t *testing.T) {
		stt := &mockSpeech{text: "hello there"}
		svc := application.NewTranscriptionService(stt, "server-key", discardLogger())
		text, err := svc.Transcribe(context.Background(), []byte("RIFF"), "a.wav")
		if err != nil {
			t.Fatalf("Transcribe error: %v", err)
		}
		if text != "hello there" || stt.key != "server-key" {
			t.Errorf("got text %q key %q", text, stt.key)
		}
	})

	t.Run("unclassified failure", func(t *testing.T) {
		stt := &mockSpeech{err: errors.New("connection reset")}
		svc := application.NewTranscriptionService(stt, "server-key", discardLogger())
		_, err := svc.Transcribe(context.Background(), []byte("RIFF"), "a.wav")
		de := domain.AsError(err)
		if de.Kind != domain.KindTransport || de.Message != "Failed to transcribe audio" {
			t.Errorf("got kind %s message %q", de.Kind, de.Message)
		}
	})
}
