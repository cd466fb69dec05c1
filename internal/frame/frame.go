// Package frame provides still-frame capture sources and the cosmetic
// filters applied to stored photos.
package frame

import (
	"context"
	"errors"
	"time"
)

// Preferred capture resolution.
const (
	Width  = 640
	Height = 480
)

// Quality is the JPEG quality used for every encoded frame.
const Quality = 85

// ErrNoFrame is returned by Still when the source has no frame available.
var ErrNoFrame = errors.New("no frame available")

// Frame is a single encoded still image.
type Frame struct {
	Data    []byte    `json:"data"` // JPEG bytes
	Filter  Filter    `json:"filter"`
	TakenAt time.Time `json:"taken_at"`
}

// Source produces still frames on demand from a live video capability.
// A Source is exclusively owned by the orchestrator while a capturing
// session is active: Open before the first Still, Close exactly once
// when the session leaves capturing.
type Source interface {
	// Open acquires the underlying device or stream.
	Open(ctx context.Context) error

	// Still renders the current frame into an encoded still image,
	// optionally through a cosmetic filter. Detection frames are always
	// requested with FilterNone.
	Still(filter Filter) (*Frame, error)

	// Close releases the underlying device or stream.
	Close() error
}
