package application

import "context"

// CaptureSource produces raw PCM chunks at a fixed cadence while started.
// Stop must be safe to call on a source whose Start failed.
type CaptureSource interface {
	Start(ctx context.Context, onChunk func([]byte)) error
	Stop() error
	Format() AudioFormat
	Name() string
}

type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	}
}
