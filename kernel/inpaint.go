package kernel

import "math"

// inpaintOffset fills offset[i] for every i where flagged[i] is true, using
// an inverse-distance-weighted average of the nearest non-flagged,
// non-nodata offset pixels found by searching successively larger square
// rings centered on i. Pixels with no donor within maxRadius are left
// untouched (still flagged, still their pre-inpaint value). Inpainting does
// not cross the h×w grid's own boundary: each Fit call operates on a single
// block, so this is inherently block-local.
func inpaintOffset(offset []float32, flagged []bool, h, w int) {
	const maxRadius = 5
	filled := make([]float32, len(offset))
	copy(filled, offset)

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			idx := row*w + col
			if !flagged[idx] {
				continue
			}
			var sumW, sumWV float64
			found := false
			for radius := 1; radius <= maxRadius && !found; radius++ {
				r0, r1 := clamp(row-radius, 0, h-1), clamp(row+radius, 0, h-1)
				c0, c1 := clamp(col-radius, 0, w-1), clamp(col+radius, 0, w-1)
				for rr := r0; rr <= r1; rr++ {
					for cc := c0; cc <= c1; cc++ {
						if rr == row && cc == col {
							continue
						}
						// only consider the newly added outer ring
						if rr != r0 && rr != r1 && cc != c0 && cc != c1 {
							continue
						}
						ni := rr*w + cc
						if flagged[ni] || isNaN32(offset[ni]) {
							continue
						}
						d := math.Hypot(float64(rr-row), float64(cc-col))
						if d == 0 {
							continue
						}
						weight := 1 / d
						sumW += weight
						sumWV += weight * float64(offset[ni])
						found = true
					}
				}
			}
			if found && sumW > 0 {
				filled[idx] = float32(sumWV / sumW)
			}
		}
	}
	copy(offset, filled)
}
