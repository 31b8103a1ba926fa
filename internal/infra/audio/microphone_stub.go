//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audio-blinkshot/internal/application"
)

// MicrophoneSource stub when portaudio is not available
type MicrophoneSource struct {
	sampleRate int
	logger     *slog.Logger
}

func NewMicrophoneSource(sampleRate int, _ time.Duration, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{sampleRate: sampleRate, logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Format() application.AudioFormat {
	return application.AudioFormat{SampleRate: m.sampleRate, Channels: 1, BitDepth: 16}
}

func (m *MicrophoneSource) Start(_ context.Context, _ func([]byte)) error {
	return fmt.Errorf("microphone source not available: rebuild with -tags portaudio")
}

func (m *MicrophoneSource) Stop() error {
	return nil
}
