package models

import (
	"fmt"
	"image"
	"time"
)

// ============================================================
// FRAME
// ============================================================

// Frame is one BGR24 pixel snapshot from a camera source. Pixels is
// row-major with 3 bytes per pixel and must not be mutated once published.
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Pixels    []byte
	Timestamp time.Time
}

// Empty reports whether the frame carries no drawable pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pixels) < f.Width*f.Height*3
}

func (f Frame) Size() image.Point {
	return image.Pt(f.Width, f.Height)
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{#%d %dx%d}", f.Seq, f.Width, f.Height)
}

// ============================================================
// LANDMARKS
// ============================================================

// Point is a landmark in frame pixel space. Z stays zero for 2D models.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

func (p Point) Image() image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}

// DetectedFace holds the ordered landmarks of one face in one frame.
type DetectedFace struct {
	Box    image.Rectangle `json:"box"`
	Points []Point         `json:"points"`
	Score  float64         `json:"score"`
}

// CountPoints returns the total number of landmarks across faces.
func CountPoints(faces []DetectedFace) int {
	n := 0
	for _, f := range faces {
		n += len(f.Points)
	}
	return n
}
