package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"audio-blinkshot/internal/domain"
)

var ErrAlreadyRecording = errors.New("already recording")

const genericFailure = "Something went wrong. Please try again."

type RecorderConfig struct {
	TranscribeInterval time.Duration
	GenerateInterval   time.Duration
	MinAudioBytes      int
	MinTranscriptChars int
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		TranscribeInterval: 2000 * time.Millisecond,
		GenerateInterval:   1500 * time.Millisecond,
		MinAudioBytes:      1000,
		MinTranscriptChars: 3,
	}
}

// withDefaults fills unset fields from DefaultRecorderConfig.
func (c RecorderConfig) withDefaults() RecorderConfig {
	d := DefaultRecorderConfig()
	if c.TranscribeInterval <= 0 {
		c.TranscribeInterval = d.TranscribeInterval
	}
	if c.GenerateInterval <= 0 {
		c.GenerateInterval = d.GenerateInterval
	}
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = d.MinAudioBytes
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = d.MinTranscriptChars
	}
	return c
}

// Recorder drives a recording session: capture fills a chunk buffer, the
// transcribe task drains it into the transcript and the generate task turns
// the transcript into images.
type Recorder struct {
	capture     CaptureSource
	encode      AudioEncoder
	proxy       Proxy
	credentials CredentialStore
	session     *Session
	notifier    Notifier
	cfg         RecorderConfig
	logger      *slog.Logger
	clock       func() time.Time

	mu        sync.Mutex
	recording bool
	cancel    context.CancelFunc
	tasks     []*Task

	chunksMu sync.Mutex
	chunks   [][]byte
}

func NewRecorder(
	capture CaptureSource,
	encode AudioEncoder,
	proxy Proxy,
	credentials CredentialStore,
	session *Session,
	notifier Notifier,
	cfg RecorderConfig,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		capture:     capture,
		encode:      encode,
		proxy:       proxy,
		credentials: credentials,
		session:     session,
		notifier:    notifier,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		clock:       time.Now,
	}
}

func (r *Recorder) Session() *Session {
	return r.session
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// LoadCredential restores the persisted credential into the session.
func (r *Recorder) LoadCredential(ctx context.Context) error {
	key, err := r.credentials.Load()
	if err != nil {
		return fmt.Errorf("loading credential: %w", err)
	}
	r.session.SetCredential(key)
	r.notifier.CreditsChanged(ctx, r.session.Credits())
	return nil
}

// SaveCredential persists key and applies it to the session. A blank key
// removes the stored credential and falls back to the server budget.
func (r *Recorder) SaveCredential(ctx context.Context, key string) error {
	if err := r.credentials.Save(key); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	r.session.SetCredential(key)
	if r.session.Credential() == "" {
		r.refreshCredits(ctx)
		return nil
	}
	r.notifier.CreditsChanged(ctx, r.session.Credits())
	return nil
}

// Start opens the capture source, clears the transcript and launches the
// transcribe and generate tasks. Anything acquired is released on failure.
func (r *Recorder) Start(ctx context.Context) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		if err != nil {
			cancel()
			if stopErr := r.capture.Stop(); stopErr != nil {
				r.logger.Warn("releasing capture source", "error", stopErr)
			}
			r.takeChunks()
		}
	}()

	r.takeChunks()
	r.session.ResetTranscript()
	r.notifier.TranscriptUpdated(ctx, "")

	r.logger.Info("starting capture", "source", r.capture.Name())
	if err := r.capture.Start(ctx, r.appendChunk); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	r.refreshCredits(ctx)

	r.tasks = []*Task{
		NewTask("transcribe", r.cfg.TranscribeInterval, r.transcribeOnce, r.logger),
		NewTask("generate", r.cfg.GenerateInterval, r.generateOnce, r.logger),
	}
	for _, t := range r.tasks {
		t.Start(ctx)
	}

	r.cancel = cancel
	r.recording = true
	r.logger.Info("recording started")
	return nil
}

// Stop cancels both tasks, waits for their runs in flight, releases the
// capture source and discards chunks not yet transcribed.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}

	r.cancel()
	for _, t := range r.tasks {
		t.Stop()
	}
	err := r.capture.Stop()
	dropped := r.takeChunks()

	r.tasks = nil
	r.cancel = nil
	r.recording = false

	r.logger.Info("recording stopped", "discarded_chunks", len(dropped))
	if err != nil {
		return fmt.Errorf("stopping capture: %w", err)
	}
	return nil
}

// Run records until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := r.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Recorder) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.chunksMu.Lock()
	defer r.chunksMu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *Recorder) takeChunks() [][]byte {
	r.chunksMu.Lock()
	defer r.chunksMu.Unlock()
	chunks := r.chunks
	r.chunks = nil
	return chunks
}

func (r *Recorder) transcribeOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	chunks := r.takeChunks()

	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	if size <= r.cfg.MinAudioBytes {
		r.logger.Debug("not enough audio to transcribe", "bytes", size)
		return nil
	}

	pcm := make([]byte, 0, size)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	wav, err := r.encode(pcm, r.capture.Format())
	if err != nil {
		return fmt.Errorf("encoding audio: %w", err)
	}

	text, err := r.proxy.Transcribe(ctx, wav)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		r.notifier.Failed(ctx, userMessage(err))
		return fmt.Errorf("transcribing: %w", err)
	}

	transcript, changed := r.session.AppendTranscript(text)
	if changed {
		r.logger.Debug("transcript updated", "chars", len(transcript))
		r.notifier.TranscriptUpdated(ctx, transcript)
	}
	return nil
}

func (r *Recorder) generateOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	transcript := strings.TrimSpace(r.session.Transcript())
	if utf8.RuneCountInString(transcript) < r.cfg.MinTranscriptChars {
		return nil
	}

	if !r.session.CanGenerate() {
		r.logger.Info("no credits or credential left, pausing generation until next session")
		return ErrStopTask
	}

	prompt := r.session.Mood().StylePrompt(transcript)
	url, err := r.proxy.GenerateImage(ctx, prompt, r.session.Credential())
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		if domain.IsKind(err, domain.KindRateLimit) {
			r.session.SetCredits(0)
			r.notifier.CreditsChanged(ctx, r.session.Credits())
		}
		r.notifier.Failed(ctx, userMessage(err))
		return fmt.Errorf("generating image: %w", err)
	}

	img := domain.GeneratedImage{
		ID:        uuid.NewString(),
		URL:       url,
		Prompt:    transcript,
		Timestamp: r.clock(),
	}
	r.session.AddImage(img)
	r.notifier.ImageGenerated(ctx, img)

	r.refreshCredits(ctx)
	return nil
}

// refreshCredits asks the server for the remaining budget unless a
// credential makes it irrelevant.
func (r *Recorder) refreshCredits(ctx context.Context) {
	if r.session.Credential() != "" {
		r.notifier.CreditsChanged(ctx, r.session.Credits())
		return
	}

	remaining, err := r.proxy.Remaining(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("refreshing credits", "error", err)
		}
		return
	}
	r.session.SetCredits(remaining)
	r.notifier.CreditsChanged(ctx, r.session.Credits())
}

// userMessage keeps specific messages for errors the user can act on.
func userMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindValidation, domain.KindConfiguration, domain.KindRateLimit:
			return de.Message
		}
	}
	return genericFailure
}
