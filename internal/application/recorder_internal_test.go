package application

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

type countingProxy struct {
	transcribe atomic.Int32
	generate   atomic.Int32
}

func (p *countingProxy) Transcribe(context.Context, []byte) (string, error) {
	p.transcribe.Add(1)
	return "words", nil
}

func (p *countingProxy) GenerateImage(context.Context, string, string) (string, error) {
	p.generate.Add(1)
	return "https://img.example/1.png", nil
}

func (p *countingProxy) Remaining(context.Context) (int, error) { return 15, nil }

func TestRecorder_CancelledRunsSkipProxy(t *testing.T) {
	proxy := &countingProxy{}
	session := NewSession(15)
	session.AppendTranscript("a quiet harbor")

	r := NewRecorder(nil, func(pcm []byte, _ AudioFormat) ([]byte, error) { return pcm, nil },
		proxy, nil, session, &NoopNotifier{}, DefaultRecorderConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.appendChunk(make([]byte, 4096))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.transcribeOnce(ctx); err != nil {
		t.Fatalf("transcribeOnce: %v", err)
	}
	if err := r.generateOnce(ctx); err != nil {
		t.Fatalf("generateOnce: %v", err)
	}
	if n := proxy.transcribe.Load(); n != 0 {
		t.Errorf("transcribe called %d times after cancel", n)
	}
	if n := proxy.generate.Load(); n != 0 {
		t.Errorf("generate called %d times after cancel", n)
	}
	if len(session.Images()) != 0 {
		t.Error("no image should be added after cancel")
	}
}
