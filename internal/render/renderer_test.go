package render_test

import (
	"image"
	"testing"

	"face-tracking-recorder/internal/render"
	"face-tracking-recorder/internal/render/rendertest"
	"face-tracking-recorder/models"
)

func face(n int, offset float64) models.DetectedFace {
	pts := make([]models.Point, n)
	for i := range pts {
		pts[i] = models.Point{X: offset + float64(i), Y: offset + float64(i)*2}
	}
	return models.DetectedFace{Points: pts}
}

func frame(w, h int) models.Frame {
	return models.Frame{Seq: 1, Width: w, Height: h, Pixels: make([]byte, w*h*3)}
}

func TestDrawLandmarksOneMarkerPerPoint(t *testing.T) {
	tests := []struct {
		name  string
		faces []models.DetectedFace
		want  int
	}{
		{"no faces", nil, 0},
		{"one face", []models.DetectedFace{face(68, 10)}, 68},
		{"three faces", []models.DetectedFace{face(68, 10), face(5, 100), face(468, 200)}, 68 + 5 + 468},
		{"face without points", []models.DetectedFace{{Box: image.Rect(0, 0, 10, 10)}}, 0},
	}

	r := render.NewRenderer(models.DefaultRenderConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rendertest.New(640, 480)
			if err := r.DrawLandmarks(s, tt.faces); err != nil {
				t.Fatalf("DrawLandmarks failed: %v", err)
			}
			if got := s.Count("circle"); got != tt.want {
				t.Errorf("Expected %d markers, got %d", tt.want, got)
			}
			if got := s.Count("line"); got != 0 {
				t.Errorf("Marker mode must not draw lines, got %d", got)
			}
		})
	}
}

func TestDrawLandmarksMarkerPositions(t *testing.T) {
	cfg := models.DefaultRenderConfig()
	cfg.MarkerRadius = 3
	r := render.NewRenderer(cfg)
	s := rendertest.New(100, 100)

	faces := []models.DetectedFace{{Points: []models.Point{{X: 10.4, Y: 20.6}, {X: 50, Y: 60}}}}
	if err := r.DrawLandmarks(s, faces); err != nil {
		t.Fatal(err)
	}

	ops := s.Ops()
	if ops[0].At != image.Pt(10, 21) || ops[0].Radius != 3 {
		t.Errorf("Unexpected first marker %+v", ops[0])
	}
	if ops[1].At != image.Pt(50, 60) {
		t.Errorf("Unexpected second marker %+v", ops[1])
	}
}

func TestDrawLandmarksMesh(t *testing.T) {
	cfg := models.DefaultRenderConfig()
	cfg.Mode = models.RenderModeMesh
	r := render.NewRenderer(cfg)
	s := rendertest.New(640, 480)

	faces := []models.DetectedFace{face(68, 0), face(5, 300)}
	if err := r.DrawLandmarks(s, faces); err != nil {
		t.Fatal(err)
	}

	// 68-point outline has 63 segments; the 5-point face falls back to markers.
	if got := s.Count("line"); got != 63 {
		t.Errorf("Expected 63 mesh segments, got %d", got)
	}
	if got := s.Count("circle"); got != 5 {
		t.Errorf("Expected 5 fallback markers, got %d", got)
	}
}

func TestNoStaleOverlay(t *testing.T) {
	r := render.NewRenderer(models.DefaultRenderConfig())
	s := rendertest.New(640, 480)
	f := frame(640, 480)

	// Cycle 1: one face.
	r.DrawFrame(s, f)
	r.DrawLandmarks(s, []models.DetectedFace{face(68, 10)})

	// Cycle 2: the face is gone.
	mark := s.Len()
	r.DrawFrame(s, f)
	r.DrawLandmarks(s, nil)

	ops := s.Since(mark)
	if len(ops) != 1 || ops[0].Kind != "frame" {
		t.Errorf("Expected only a base frame redraw after the face disappeared, got %+v", ops)
	}
}

func TestDrawFrameRejectsEmpty(t *testing.T) {
	r := render.NewRenderer(models.DefaultRenderConfig())
	s := rendertest.New(10, 10)

	if err := r.DrawFrame(s, models.Frame{}); err == nil {
		t.Fatal("Expected error for empty frame")
	}
	if s.Count("frame") != 0 {
		t.Error("Empty frame must not reach the surface")
	}
}

func TestEnsureSize(t *testing.T) {
	s := rendertest.New(320, 240)

	resized, err := render.EnsureSize(s, frame(640, 480))
	if err != nil || !resized {
		t.Fatalf("Expected resize, got %v/%v", resized, err)
	}
	if s.Size() != image.Pt(640, 480) {
		t.Errorf("Surface not resized: %v", s.Size())
	}

	resized, _ = render.EnsureSize(s, frame(640, 480))
	if resized {
		t.Error("Matching dimensions must not trigger a resize")
	}
}
