// Package surface provides the OpenCV-backed drawing surface the capture
// loop renders into and the recorder taps.
package surface

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"face-tracking-recorder/models"

	"gocv.io/x/gocv"
)

// ============================================================
// MAT SURFACE
// ============================================================

// Mat is a BGR canvas backed by a gocv.Mat. All methods are safe for
// concurrent use; Snapshot returns a copy so the recorder never sees a
// half-drawn cycle mid-write.
type Mat struct {
	mu  sync.Mutex
	mat gocv.Mat
}

// New creates a black canvas of the given size. A zero size leaves the
// canvas empty until the first frame resizes it.
func New(width, height int) *Mat {
	if width <= 0 || height <= 0 {
		return &Mat{mat: gocv.NewMat()}
	}
	return &Mat{mat: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)}
}

func (m *Mat) Size() image.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return image.Pt(m.mat.Cols(), m.mat.Rows())
}

func (m *Mat) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mat.Close()
	m.mat = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
	return nil
}

func (m *Mat) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return nil
}

// DrawFrame copies the frame onto the canvas, scaling when sizes differ.
func (m *Mat) DrawFrame(frame models.Frame) error {
	if frame.Empty() {
		return fmt.Errorf("draw %v: empty frame", frame)
	}
	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pixels[:frame.Width*frame.Height*3])
	if err != nil {
		return fmt.Errorf("NewMatFromBytes: %w", err)
	}
	defer src.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	if src.Cols() == m.mat.Cols() && src.Rows() == m.mat.Rows() {
		src.CopyTo(&m.mat)
		return nil
	}
	gocv.Resize(src, &m.mat, image.Pt(m.mat.Cols(), m.mat.Rows()), 0, 0, gocv.InterpolationLinear)
	return nil
}

func (m *Mat) FillCircle(center image.Point, radius int, c color.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gocv.Circle(&m.mat, center, radius, c, -1)
	return nil
}

func (m *Mat) Line(from, to image.Point, c color.RGBA, thickness int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gocv.Line(&m.mat, from, to, c, thickness)
	return nil
}

// Snapshot returns the current canvas as a BGR24 frame.
func (m *Mat) Snapshot() (models.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mat.Empty() {
		return models.Frame{}, models.ErrUnsupportedStream
	}
	return models.Frame{
		Width:  m.mat.Cols(),
		Height: m.mat.Rows(),
		Pixels: m.mat.ToBytes(),
	}, nil
}

// Close releases the underlying Mat.
func (m *Mat) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mat.Close()
}
