package domain

import (
	"fmt"
	"strings"
	"time"
)

type Mood string

const (
	MoodHyperrealism Mood = "Hyperrealism"
	MoodAnime        Mood = "Anime"
	MoodPixelArt     Mood = "Pixel Art"
	MoodPortrait     Mood = "Portrait"
	MoodArtistic     Mood = "Artistic"
	MoodMinimal      Mood = "Minimal"
	MoodRandom       Mood = "Random"
)

const DefaultMood = MoodHyperrealism

func Moods() []Mood {
	return []Mood{
		MoodHyperrealism,
		MoodAnime,
		MoodPixelArt,
		MoodPortrait,
		MoodArtistic,
		MoodMinimal,
		MoodRandom,
	}
}

// ParseMood matches a mood name case-insensitively.
func ParseMood(name string) (Mood, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, m := range Moods() {
		if strings.ToLower(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mood: %q", name)
}

// StylePrompt prefixes the transcript with the mood label sent upstream.
func (m Mood) StylePrompt(transcript string) string {
	return fmt.Sprintf("%s style: %s", m, transcript)
}

type GeneratedImage struct {
	ID        string
	URL       string
	Prompt    string
	Timestamp time.Time
}

// Unlimited is the credit count reported while a caller credential is set.
const Unlimited = -1

// CredentialKey is the storage key of the persisted caller credential.
const CredentialKey = "audio-blinkshot-api-key"

type ImageResultKind int

const (
	ImageMalformed ImageResultKind = iota
	ImageURL
	ImageInline
)

// ImageResult is the classified shape of an image generation answer.
// Value holds the URL for ImageURL, the base64 payload for ImageInline and a
// diagnostic description for ImageMalformed.
type ImageResult struct {
	Kind  ImageResultKind
	Value string
}

// Location returns a URL the image can be loaded from. Inline payloads are
// returned as a data URL.
func (r ImageResult) Location() (string, bool) {
	switch r.Kind {
	case ImageURL:
		return r.Value, true
	case ImageInline:
		return "data:image/png;base64," + r.Value, true
	default:
		return "", false
	}
}
