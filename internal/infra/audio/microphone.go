//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"audio-blinkshot/internal/application"
)

const framesPerBuffer = 1024

// MicrophoneSource captures 16-bit mono PCM from the default input device
// and hands it out once per chunk interval.
type MicrophoneSource struct {
	sampleRate    int
	chunkInterval time.Duration
	logger        *slog.Logger

	mu          sync.Mutex
	stream      *portaudio.Stream
	initialized bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewMicrophoneSource(sampleRate int, chunkInterval time.Duration, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		sampleRate:    sampleRate,
		chunkInterval: chunkInterval,
		logger:        logger,
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Format() application.AudioFormat {
	return application.AudioFormat{SampleRate: m.sampleRate, Channels: 1, BitDepth: 16}
}

func (m *MicrophoneSource) Start(ctx context.Context, onChunk func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	m.initialized = true

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	m.stream = stream

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.capture(ctx, stream, buffer, onChunk)

	m.logger.Info("microphone started", "sampleRate", m.sampleRate, "chunk", m.chunkInterval)
	return nil
}

func (m *MicrophoneSource) capture(ctx context.Context, stream *portaudio.Stream, buffer []int16, onChunk func([]byte)) {
	defer m.wg.Done()

	chunkSamples := int(float64(m.sampleRate) * m.chunkInterval.Seconds())
	pending := make([]byte, 0, chunkSamples*2)

	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			m.logger.Warn("reading from microphone", "error", err)
			continue
		}
		for _, sample := range buffer {
			pending = binary.LittleEndian.AppendUint16(pending, uint16(sample))
		}
		if len(pending) >= chunkSamples*2 {
			onChunk(pending)
			pending = make([]byte, 0, chunkSamples*2)
		}
	}
}

// Stop halts capture and releases the device. It is safe after a failed Start.
func (m *MicrophoneSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
		m.cancel = nil
	}

	var err error
	if m.stream != nil {
		m.stream.Stop()
		err = m.stream.Close()
		m.stream = nil
	}
	if m.initialized {
		portaudio.Terminate()
		m.initialized = false
	}
	if err != nil {
		return fmt.Errorf("closing stream: %w", err)
	}
	return nil
}
