package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"audio-blinkshot/internal/application"
)

// FileSource replays the PCM of a WAV file in real time, one chunk per
// interval, as if it were being spoken into a microphone.
type FileSource struct {
	path          string
	chunkInterval time.Duration
	loop          bool
	logger        *slog.Logger

	mu     sync.Mutex
	format application.AudioFormat
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFileSource(path string, chunkInterval time.Duration, loop bool, logger *slog.Logger) *FileSource {
	return &FileSource{
		path:          path,
		chunkInterval: chunkInterval,
		loop:          loop,
		logger:        logger,
		format:        application.DefaultAudioFormat(),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Format() application.AudioFormat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

func (f *FileSource) Start(ctx context.Context, onChunk func([]byte)) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading audio file: %w", err)
	}
	pcm, format, err := DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", f.path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.format = format
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go f.replay(ctx, pcm, format, onChunk)

	f.logger.Info("replaying audio file", "path", f.path, "bytes", len(pcm), "sampleRate", format.SampleRate)
	return nil
}

func (f *FileSource) replay(ctx context.Context, pcm []byte, format application.AudioFormat, onChunk func([]byte)) {
	defer f.wg.Done()

	blockAlign := format.Channels * format.BitDepth / 8
	chunkSize := int(float64(format.SampleRate)*f.chunkInterval.Seconds()) * blockAlign
	if chunkSize <= 0 {
		chunkSize = blockAlign
	}

	ticker := time.NewTicker(f.chunkInterval)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if offset >= len(pcm) {
				if !f.loop {
					f.logger.Info("audio file replay finished", "path", f.path)
					return
				}
				offset = 0
			}
			end := min(offset+chunkSize, len(pcm))
			chunk := make([]byte, end-offset)
			copy(chunk, pcm[offset:end])
			onChunk(chunk)
			offset = end
		}
	}
}

func (f *FileSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
		f.wg.Wait()
		f.cancel = nil
	}
	return nil
}
