// Package landmarks holds the pure geometry around face detection: scaling
// detector rectangles, picking and expanding face crops, and decoding
// landmark-model output into normalized points.
package landmarks

import (
	"image"
	"sort"
)

// ============================================================
// RECT SCALING
// ============================================================

// DetectionSize returns the size a frame is resized to before cascade
// detection, and the scale factor applied. Frames narrower than
// targetWidth are not upscaled.
func DetectionSize(width, height, targetWidth int) (image.Point, float64) {
	if width <= 0 || height <= 0 || targetWidth <= 0 || width <= targetWidth {
		return image.Pt(width, height), 1.0
	}
	scale := float64(targetWidth) / float64(width)
	return image.Pt(targetWidth, int(float64(height)*scale)), scale
}

// ScaleRects maps rectangles found on a scaled image back to the
// original frame.
func ScaleRects(rects []image.Rectangle, scale float64) []image.Rectangle {
	if scale == 1.0 || scale <= 0 {
		return rects
	}
	out := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		out = append(out, image.Rect(
			int(float64(r.Min.X)/scale),
			int(float64(r.Min.Y)/scale),
			int(float64(r.Max.X)/scale),
			int(float64(r.Max.Y)/scale),
		))
	}
	return out
}

// ============================================================
// FACE SELECTION
// ============================================================

// SelectFaces drops faces smaller than minSize on either side and returns
// at most maxFaces of the rest, largest first.
func SelectFaces(rects []image.Rectangle, minSize, maxFaces int) []image.Rectangle {
	var valid []image.Rectangle
	for _, r := range rects {
		if r.Dx() >= minSize && r.Dy() >= minSize && !r.Empty() {
			valid = append(valid, r)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return area(valid[i]) > area(valid[j])
	})

	if maxFaces > 0 && len(valid) > maxFaces {
		valid = valid[:maxFaces]
	}
	return valid
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// ExpandSquare grows face by ratio on each side, squares it around its
// center and clamps it to the image bounds.
func ExpandSquare(face image.Rectangle, ratio float64, imgWidth, imgHeight int) image.Rectangle {
	expandX := int(float64(face.Dx()) * ratio)
	expandY := int(float64(face.Dy()) * ratio)

	x1 := max(face.Min.X-expandX, 0)
	y1 := max(face.Min.Y-expandY, 0)
	x2 := min(face.Max.X+expandX, imgWidth)
	y2 := min(face.Max.Y+expandY, imgHeight)

	expandedWidth := x2 - x1
	expandedHeight := y2 - y1
	squareSize := max(expandedWidth, expandedHeight)

	centerX := x1 + expandedWidth/2
	centerY := y1 + expandedHeight/2

	sx1 := centerX - squareSize/2
	sy1 := centerY - squareSize/2
	sx2 := sx1 + squareSize
	sy2 := sy1 + squareSize

	if sx1 < 0 {
		sx1 = 0
		sx2 = min(squareSize, imgWidth)
	}
	if sy1 < 0 {
		sy1 = 0
		sy2 = min(squareSize, imgHeight)
	}
	if sx2 > imgWidth {
		sx2 = imgWidth
		sx1 = max(imgWidth-squareSize, 0)
	}
	if sy2 > imgHeight {
		sy2 = imgHeight
		sy1 = max(imgHeight-squareSize, 0)
	}

	return image.Rect(sx1, sy1, sx2, sy2)
}
