package application

import (
	"context"
	"log/slog"

	"audio-blinkshot/internal/domain"
)

// Notifier receives session events for presentation.
type Notifier interface {
	TranscriptUpdated(ctx context.Context, transcript string)
	ImageGenerated(ctx context.Context, image domain.GeneratedImage)
	CreditsChanged(ctx context.Context, credits int)
	Failed(ctx context.Context, message string)
}

type NoopNotifier struct{}

func (n *NoopNotifier) TranscriptUpdated(_ context.Context, _ string)             {}
func (n *NoopNotifier) ImageGenerated(_ context.Context, _ domain.GeneratedImage) {}
func (n *NoopNotifier) CreditsChanged(_ context.Context, _ int)                   {}
func (n *NoopNotifier) Failed(_ context.Context, _ string)                        {}

// LogNotifier writes session events to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) TranscriptUpdated(_ context.Context, transcript string) {
	n.logger.Info("transcript updated", "transcript", transcript)
}

func (n *LogNotifier) ImageGenerated(_ context.Context, image domain.GeneratedImage) {
	n.logger.Info("image generated", "id", image.ID, "url", image.URL, "prompt", image.Prompt)
}

func (n *LogNotifier) CreditsChanged(_ context.Context, credits int) {
	if credits == domain.Unlimited {
		n.logger.Info("credits changed", "credits", "unlimited")
		return
	}
	n.logger.Info("credits changed", "credits", credits)
}

func (n *LogNotifier) Failed(_ context.Context, message string) {
	n.logger.Warn("session error", "message", message)
}
