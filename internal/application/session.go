package application

import (
	"strings"
	"sync"

	"audio-blinkshot/internal/domain"
)

// Session holds the state of one client: the running transcript, the images
// generated so far, the caller credential, the credit count and the selected
// mood. It is the only writer of the transcript and the image list.
type Session struct {
	mu         sync.RWMutex
	transcript string
	images     []domain.GeneratedImage
	credential string
	credits    int
	mood       domain.Mood
}

func NewSession(initialCredits int) *Session {
	return &Session{
		credits: initialCredits,
		mood:    domain.DefaultMood,
	}
}

func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

// AppendTranscript joins text onto the transcript with a single space. Blank
// text leaves the transcript untouched and reports false.
func (s *Session) AppendTranscript(text string) (string, bool) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" {
		return s.transcript, false
	}
	s.transcript = strings.TrimSpace(s.transcript + " " + text)
	return s.transcript, true
}

func (s *Session) ResetTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = ""
}

// Images returns the generated images, newest first.
func (s *Session) Images() []domain.GeneratedImage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GeneratedImage, len(s.images))
	copy(out, s.images)
	return out
}

func (s *Session) AddImage(img domain.GeneratedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append([]domain.GeneratedImage{img}, s.images...)
}

func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// SetCredential stores the caller credential. While one is set the credit
// count reads as Unlimited.
func (s *Session) SetCredential(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = strings.TrimSpace(key)
	if s.credential != "" {
		s.credits = domain.Unlimited
	} else if s.credits == domain.Unlimited {
		s.credits = 0
	}
}

func (s *Session) Credits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credits
}

// SetCredits records the server-reported remaining budget. It is ignored
// while a credential is set.
func (s *Session) SetCredits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credential != "" {
		return
	}
	s.credits = max(0, n)
}

// CanGenerate reports whether a generation may be attempted.
func (s *Session) CanGenerate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential != "" || s.credits > 0
}

func (s *Session) Mood() domain.Mood {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mood
}

func (s *Session) SetMood(m domain.Mood) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mood = m
}
