package source

import (
	"sync"
	"time"

	"face-tracking-recorder/models"
)

// FrameSource exposes the most recent camera frame. It never queues.
type FrameSource interface {
	IsReady() bool
	CurrentFrame() (models.Frame, error)
	Close() error
}

// Failer is implemented by sources that can stop for good after opening,
// such as an unplugged camera.
type Failer interface {
	Err() error
}

// ============================================================
// LATEST FRAME SLOT
// ============================================================

// Latest is a single-slot frame holder shared by the concrete sources.
// Publish overwrites, CurrentFrame reads; readiness latches on the first
// non-empty frame.
type Latest struct {
	mu    sync.RWMutex
	frame models.Frame
	ready bool
	seq   uint64
	now   func() time.Time
}

func NewLatest() *Latest {
	return &Latest{now: time.Now}
}

// Publish stores a copy of the frame header; the pixel slice is owned by
// the slot from now on and callers must not reuse it.
func (l *Latest) Publish(width, height int, pixels []byte) {
	if width <= 0 || height <= 0 || len(pixels) < width*height*3 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.frame = models.Frame{
		Seq:       l.seq,
		Width:     width,
		Height:    height,
		Pixels:    pixels,
		Timestamp: l.now(),
	}
	l.ready = true
}

func (l *Latest) IsReady() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

func (l *Latest) CurrentFrame() (models.Frame, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ready {
		return models.Frame{}, models.ErrNotReady
	}
	return l.frame, nil
}

// Published returns the number of frames seen so far.
func (l *Latest) Published() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Close is a no-op so Latest itself satisfies FrameSource.
func (l *Latest) Close() error {
	return nil
}
