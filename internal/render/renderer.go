package render

import (
	"fmt"
	"image/color"

	"face-tracking-recorder/models"
)

// ============================================================
// ANNOTATION RENDERER
// ============================================================

// Renderer draws frames and landmarks onto a Surface. It keeps no state
// between calls beyond its configuration.
type Renderer struct {
	cfg   models.RenderConfig
	color color.RGBA
}

func NewRenderer(cfg models.RenderConfig) *Renderer {
	if cfg.MarkerRadius <= 0 {
		cfg.MarkerRadius = 2
	}
	if cfg.Thickness <= 0 {
		cfg.Thickness = 1
	}
	return &Renderer{
		cfg:   cfg,
		color: color.RGBA{R: cfg.ColorR, G: cfg.ColorG, B: cfg.ColorB, A: 255},
	}
}

// DrawsBase reports whether cycles should blit the frame or clear.
func (r *Renderer) DrawsBase() bool {
	return r.cfg.DrawBase
}

// DrawFrame blits the frame at (0,0) scaled to the surface.
func (r *Renderer) DrawFrame(s Surface, frame models.Frame) error {
	if frame.Empty() {
		return fmt.Errorf("draw frame: %v is empty", frame)
	}
	return s.DrawFrame(frame)
}

// Clear wipes the surface, used when the base frame is layered elsewhere.
func (r *Renderer) Clear(s Surface) error {
	return s.Clear()
}

// DrawLandmarks draws every point of every face. In mesh mode faces with
// a known outline get connected contours; others fall back to markers.
func (r *Renderer) DrawLandmarks(s Surface, faces []models.DetectedFace) error {
	for i, face := range faces {
		if r.cfg.Mode == models.RenderModeMesh {
			if segs := meshSegments(len(face.Points)); segs != nil {
				if err := r.drawMesh(s, face, segs); err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				continue
			}
		}
		if err := r.drawMarkers(s, face); err != nil {
			return fmt.Errorf("face %d: %w", i, err)
		}
	}
	return nil
}

func (r *Renderer) drawMarkers(s Surface, face models.DetectedFace) error {
	for _, p := range face.Points {
		if err := s.FillCircle(p.Image(), r.cfg.MarkerRadius, r.color); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawMesh(s Surface, face models.DetectedFace, segs [][2]int) error {
	for _, seg := range segs {
		a, b := face.Points[seg[0]], face.Points[seg[1]]
		if err := s.Line(a.Image(), b.Image(), r.color, r.cfg.Thickness); err != nil {
			return err
		}
	}
	return nil
}
