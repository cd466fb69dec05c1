// Package session holds the state of a single photobooth session: the
// current phase, the captured photo sequence, the retake target, and
// the strip caption. Every mutation goes through a method so the
// photo-count and caption-length invariants hold at all times.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/smilebooth/internal/frame"
)

// MaxPhotos is the number of photos in a finished strip.
const MaxPhotos = 3

// MaxCaptionLen is the caption limit in runes; longer input is truncated.
const MaxCaptionLen = 60

// ErrSessionFull is returned by AddPhoto once the sequence holds MaxPhotos.
var ErrSessionFull = errors.New("photo sequence is full")

// ErrBadIndex is returned for photo indices outside the sequence.
var ErrBadIndex = errors.New("photo index out of range")

// Phase is the lifecycle stage of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCapturing
	PhasePreview
	PhaseFinal
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCapturing:
		return "capturing"
	case PhasePreview:
		return "preview"
	case PhaseFinal:
		return "final"
	}
	return "unknown"
}

// Session is the booth state for one run. It lives in memory only and
// is exclusively owned by the orchestrator while capturing.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`

	phase        Phase
	photos       []frame.Frame
	retakeTarget *int
	caption      string
}

// New returns a fresh idle session.
func New() *Session {
	return &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		phase:     PhaseIdle,
		photos:    make([]frame.Frame, 0, MaxPhotos),
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// SetPhase moves the session to p. Transition legality is the
// orchestrator's concern; the session only records it.
func (s *Session) SetPhase(p Phase) { s.phase = p }

// Photos returns a copy of the captured sequence in capture order.
func (s *Session) Photos() []frame.Frame {
	out := make([]frame.Frame, len(s.photos))
	copy(out, s.photos)
	return out
}

// PhotoCount returns the number of captured photos.
func (s *Session) PhotoCount() int { return len(s.photos) }

// Full reports whether the sequence holds MaxPhotos.
func (s *Session) Full() bool { return len(s.photos) >= MaxPhotos }

// AddPhoto appends f to the sequence.
func (s *Session) AddPhoto(f frame.Frame) error {
	if s.Full() {
		return ErrSessionFull
	}
	s.photos = append(s.photos, f)
	return nil
}

// SetPhoto overwrites the photo at index i, used when a retake
// completes. The slot must already be filled.
func (s *Session) SetPhoto(i int, f frame.Frame) error {
	if i < 0 || i >= len(s.photos) {
		return ErrBadIndex
	}
	s.photos[i] = f
	return nil
}

// RetakeTarget returns the pending retake index, or -1 when none is set.
func (s *Session) RetakeTarget() int {
	if s.retakeTarget == nil {
		return -1
	}
	return *s.retakeTarget
}

// SetRetakeTarget records i as the slot the next capture overwrites.
// i must be a valid index at the moment it is set.
func (s *Session) SetRetakeTarget(i int) error {
	if i < 0 || i >= len(s.photos) {
		return ErrBadIndex
	}
	target := i
	s.retakeTarget = &target
	return nil
}

// ClearRetakeTarget drops any pending retake index.
func (s *Session) ClearRetakeTarget() { s.retakeTarget = nil }

// Caption returns the strip caption, possibly empty.
func (s *Session) Caption() string { return s.caption }

// SetCaption stores text as the caption, truncated to MaxCaptionLen runes.
func (s *Session) SetCaption(text string) {
	runes := []rune(text)
	if len(runes) > MaxCaptionLen {
		runes = runes[:MaxCaptionLen]
	}
	s.caption = string(runes)
}

// Reset clears photos, caption, and retake target and returns the
// session to idle. Identity and start time are kept; a new run gets a
// new Session.
func (s *Session) Reset() {
	s.phase = PhaseIdle
	s.photos = s.photos[:0]
	s.retakeTarget = nil
	s.caption = ""
}
