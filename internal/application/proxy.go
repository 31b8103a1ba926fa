package application

import "context"

// Proxy is the client side of the transcription and image generation server.
type Proxy interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	GenerateImage(ctx context.Context, prompt, apiKey string) (string, error)
	Remaining(ctx context.Context) (int, error)
}

// CredentialStore persists the caller credential between sessions. Saving a
// blank key removes it.
type CredentialStore interface {
	Load() (string, error)
	Save(key string) error
}

// AudioEncoder wraps raw PCM into an uploadable container.
type AudioEncoder func(pcm []byte, format AudioFormat) ([]byte, error)
