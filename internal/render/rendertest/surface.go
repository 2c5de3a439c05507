// Package rendertest provides an in-memory Surface that records draw calls.
package rendertest

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"face-tracking-recorder/models"
)

// Op is one recorded draw call.
type Op struct {
	Kind   string // "frame", "clear", "circle", "line", "resize"
	Seq    uint64
	At     image.Point
	To     image.Point
	Radius int
}

// Surface records every call and keeps a BGR pixel buffer so it can be
// snapshotted like a real surface.
type Surface struct {
	mu     sync.Mutex
	size   image.Point
	pixels []byte
	ops    []Op
	frames uint64

	// FailDraw makes every draw call return an error when set.
	FailDraw bool
}

func New(width, height int) *Surface {
	s := &Surface{}
	s.Resize(width, height)
	s.ops = nil
	return s
}

func (s *Surface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Surface) Resize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = image.Pt(width, height)
	s.pixels = make([]byte, width*height*3)
	s.ops = append(s.ops, Op{Kind: "resize", At: s.size})
	return nil
}

func (s *Surface) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDraw {
		return errors.New("draw failed")
	}
	for i := range s.pixels {
		s.pixels[i] = 0
	}
	s.ops = append(s.ops, Op{Kind: "clear"})
	return nil
}

func (s *Surface) DrawFrame(frame models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDraw {
		return errors.New("draw failed")
	}
	copy(s.pixels, frame.Pixels)
	s.frames++
	s.ops = append(s.ops, Op{Kind: "frame", Seq: frame.Seq})
	return nil
}

func (s *Surface) FillCircle(center image.Point, radius int, c color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDraw {
		return errors.New("draw failed")
	}
	s.ops = append(s.ops, Op{Kind: "circle", At: center, Radius: radius})
	return nil
}

func (s *Surface) Line(from, to image.Point, c color.RGBA, thickness int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDraw {
		return errors.New("draw failed")
	}
	s.ops = append(s.ops, Op{Kind: "line", At: from, To: to})
	return nil
}

func (s *Surface) Snapshot() (models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(s.pixels))
	copy(buf, s.pixels)
	return models.Frame{Width: s.size.X, Height: s.size.Y, Pixels: buf}, nil
}

// Ops returns a copy of the recorded calls.
func (s *Surface) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// Count returns how many recorded calls have the given kind.
func (s *Surface) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps size and pixels.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

// Since returns the calls recorded after the n-th one.
func (s *Surface) Since(n int) []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.ops) {
		return nil
	}
	out := make([]Op, len(s.ops)-n)
	copy(out, s.ops[n:])
	return out
}

// Len returns the number of recorded calls.
func (s *Surface) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}
