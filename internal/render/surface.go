package render

import (
	"image"
	"image/color"

	"face-tracking-recorder/models"
)

// Surface is a drawable target. Implementations guard their own pixels;
// callers must Resize to the frame's dimensions before drawing.
type Surface interface {
	Size() image.Point
	Resize(width, height int) error
	Clear() error
	DrawFrame(frame models.Frame) error
	FillCircle(center image.Point, radius int, c color.RGBA) error
	Line(from, to image.Point, c color.RGBA, thickness int) error
}

// Capturable is a surface that can be tapped as a live stream. Snapshot
// returns a copy of the current pixels.
type Capturable interface {
	Surface
	Snapshot() (models.Frame, error)
}

// EnsureSize resizes s when its dimensions differ from the frame's.
// It reports whether a resize happened.
func EnsureSize(s Surface, frame models.Frame) (bool, error) {
	if s.Size() == frame.Size() {
		return false, nil
	}
	if err := s.Resize(frame.Width, frame.Height); err != nil {
		return false, err
	}
	return true, nil
}
