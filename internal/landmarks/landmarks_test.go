package landmarks

import (
	"image"
	"math"
	"testing"

	"face-tracking-recorder/models"
)

func TestDetectionSize(t *testing.T) {
	size, scale := DetectionSize(640, 480, 320)
	if size != image.Pt(320, 240) || scale != 0.5 {
		t.Errorf("Expected 320x240 at 0.5, got %v at %v", size, scale)
	}

	size, scale = DetectionSize(200, 150, 320)
	if size != image.Pt(200, 150) || scale != 1.0 {
		t.Errorf("Small frames must not be upscaled, got %v at %v", size, scale)
	}
}

func TestScaleRects(t *testing.T) {
	rects := []image.Rectangle{image.Rect(10, 20, 30, 40)}
	got := ScaleRects(rects, 0.5)
	want := image.Rect(20, 40, 60, 80)
	if len(got) != 1 || got[0] != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSelectFaces(t *testing.T) {
	rects := []image.Rectangle{
		image.Rect(0, 0, 50, 50),    // too small
		image.Rect(0, 0, 100, 100),  // medium
		image.Rect(0, 0, 200, 200),  // large
		image.Rect(0, 0, 120, 70),   // too short
		image.Rect(10, 10, 90, 100), // smaller medium
	}

	got := SelectFaces(rects, 80, 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(got))
	}
	if got[0] != image.Rect(0, 0, 200, 200) || got[1] != image.Rect(0, 0, 100, 100) {
		t.Errorf("Expected largest-first selection, got %v", got)
	}

	if faces := SelectFaces(nil, 80, 2); len(faces) != 0 {
		t.Errorf("Expected no faces, got %v", faces)
	}
}

func TestExpandSquareStaysInBounds(t *testing.T) {
	tests := []struct {
		name string
		face image.Rectangle
	}{
		{"center", image.Rect(100, 100, 200, 220)},
		{"top-left corner", image.Rect(0, 0, 80, 100)},
		{"bottom-right corner", image.Rect(560, 380, 640, 480)},
	}

	bounds := image.Rect(0, 0, 640, 480)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandSquare(tt.face, 0.2, 640, 480)
			if !got.In(bounds) {
				t.Errorf("Expanded rect %v leaves the image", got)
			}
			if got.Intersect(tt.face).Empty() {
				t.Errorf("Expanded rect %v no longer covers the face %v", got, tt.face)
			}
		})
	}

	got := ExpandSquare(image.Rect(100, 100, 200, 220), 0.2, 640, 480)
	if got.Dx() != got.Dy() {
		t.Errorf("Expected a square away from the borders, got %v", got)
	}
}

func TestDecodeNormalized(t *testing.T) {
	crop := image.Rect(100, 50, 300, 250) // 200x200
	out := []float32{0, 0, 0.5, 0.5, 1, 1}

	points, err := Decode(out, 3, models.LayoutXY, crop, 112)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := []models.Point{{X: 100, Y: 50}, {X: 200, Y: 150}, {X: 300, Y: 250}}
	for i, p := range points {
		if p != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], p)
		}
	}
}

func TestDecodePixelSpaceXYZ(t *testing.T) {
	crop := image.Rect(0, 0, 224, 224)
	out := []float32{56, 112, 10, 112, 56, -10}

	points, err := Decode(out, 2, models.LayoutXYZ, crop, 112)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if points[0].X != 112 || points[0].Y != 224 {
		t.Errorf("Unexpected first point %v", points[0])
	}
	if math.Abs(points[1].Z-(-10.0/112*224)) > 1e-9 {
		t.Errorf("Unexpected depth %v", points[1].Z)
	}
}

func TestDecodeRejectsShortOutput(t *testing.T) {
	if _, err := Decode(make([]float32, 10), 68, models.LayoutXY, image.Rect(0, 0, 10, 10), 112); err == nil {
		t.Fatal("Expected error for short output")
	}
}

func TestBounds(t *testing.T) {
	got := Bounds([]models.Point{{X: 1.5, Y: 2.2}, {X: 9.1, Y: 7.8}})
	if got != image.Rect(1, 2, 10, 8) {
		t.Errorf("Unexpected bounds %v", got)
	}
	if !Bounds(nil).Empty() {
		t.Error("Expected empty bounds for no points")
	}
}
