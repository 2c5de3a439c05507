package render

// contour is a run of landmark indices joined by lines; closed contours
// also join the last index back to the first.
type contour struct {
	from, to int
	closed   bool
}

// contours68 follows the iBUG 300-W annotation used by 68-point models.
var contours68 = []contour{
	{0, 16, false},  // jaw
	{17, 21, false}, // right brow
	{22, 26, false}, // left brow
	{27, 30, false}, // nose bridge
	{31, 35, false}, // lower nose
	{36, 41, true},  // right eye
	{42, 47, true},  // left eye
	{48, 59, true},  // outer lip
	{60, 67, true},  // inner lip
}

// meshSegments returns the index pairs to connect for a face with n
// points, or nil when no outline is known for that layout.
func meshSegments(n int) [][2]int {
	if n != 68 {
		return nil
	}
	var segs [][2]int
	for _, c := range contours68 {
		for i := c.from; i < c.to; i++ {
			segs = append(segs, [2]int{i, i + 1})
		}
		if c.closed {
			segs = append(segs, [2]int{c.to, c.from})
		}
	}
	return segs
}
