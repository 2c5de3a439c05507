package landmarks

import (
	"fmt"
	"image"
	"math"

	"face-tracking-recorder/models"
)

// ============================================================
// MODEL OUTPUT DECODING
// ============================================================

// Decode converts a flat landmark tensor for one face crop into points in
// frame pixel space. The tensor is laid out as x0,y0[,z0],x1,y1[,z1],...
// and may be normalized to [0,1] or expressed in model-input pixels of
// size inputSize; the two are told apart by magnitude.
func Decode(out []float32, count int, layout string, crop image.Rectangle, inputSize int) ([]models.Point, error) {
	dims := 2
	if layout == models.LayoutXYZ {
		dims = 3
	}
	if count <= 0 {
		return nil, fmt.Errorf("landmark count must be positive, got %d", count)
	}
	if len(out) < count*dims {
		return nil, fmt.Errorf("model output has %d values, need %d for %d %s landmarks",
			len(out), count*dims, count, layout)
	}
	if crop.Empty() {
		return nil, fmt.Errorf("empty crop %v", crop)
	}

	unit := 1.0
	if !normalized(out[:count*dims], dims) {
		if inputSize <= 0 {
			return nil, fmt.Errorf("pixel-space output needs an input size")
		}
		unit = float64(inputSize)
	}

	w := float64(crop.Dx())
	h := float64(crop.Dy())

	points := make([]models.Point, count)
	for i := 0; i < count; i++ {
		base := i * dims
		x := float64(out[base]) / unit
		y := float64(out[base+1]) / unit
		if math.IsNaN(x) || math.IsNaN(y) {
			return nil, fmt.Errorf("landmark %d is NaN", i)
		}
		p := models.Point{
			X: float64(crop.Min.X) + x*w,
			Y: float64(crop.Min.Y) + y*h,
		}
		if dims == 3 {
			p.Z = float64(out[base+2]) / unit * w
		}
		points[i] = p
	}
	return points, nil
}

func normalized(values []float32, dims int) bool {
	for i := 0; i < len(values); i += dims {
		if math.Abs(float64(values[i])) > 1.5 || math.Abs(float64(values[i+1])) > 1.5 {
			return false
		}
	}
	return true
}

// Bounds returns the bounding box of the points, rounded outwards.
func Bounds(points []models.Point) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
