package kernel

import "math"

// boxSum computes, for every pixel p in an h×w grid, the sum of values over
// the kh×kw window centered at p (kh, kw both odd), treating out-of-bounds
// cells as zero (BORDER_CONSTANT=0). It is the separable box-filter
// ("mean filter with normalize=false") the fitting algorithm is built on,
// implemented via a summed-area table for O(h*w) total work regardless of
// kernel size.
func boxSum(values []float64, h, w, kh, kw int) []float64 {
	integral := buildIntegral(values, h, w)
	halfH, halfW := kh/2, kw/2
	out := make([]float64, h*w)
	for r := 0; r < h; r++ {
		r0 := clamp(r-halfH, 0, h)
		r1 := clamp(r+halfH+1, 0, h)
		for c := 0; c < w; c++ {
			c0 := clamp(c-halfW, 0, w)
			c1 := clamp(c+halfW+1, 0, w)
			out[r*w+c] = rectSum(integral, w, r0, c0, r1, c1)
		}
	}
	return out
}

// buildIntegral returns an (h+1)x(w+1) summed-area table of values, laid out
// row-major with row/col stride w+1.
func buildIntegral(values []float64, h, w int) []float64 {
	stride := w + 1
	integral := make([]float64, (h+1)*stride)
	for r := 0; r < h; r++ {
		rowSum := 0.0
		for c := 0; c < w; c++ {
			rowSum += values[r*w+c]
			integral[(r+1)*stride+(c+1)] = integral[r*stride+(c+1)] + rowSum
		}
	}
	return integral
}

// rectSum returns the sum of the original values over rows [r0,r1) and
// columns [c0,c1) using a summed-area table built with stride w+1.
func rectSum(integral []float64, w, r0, c0, r1, c1 int) float64 {
	stride := w + 1
	return integral[r1*stride+c1] - integral[r0*stride+c1] - integral[r1*stride+c0] + integral[r0*stride+c0]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// moments holds the box-summed quantities needed to fit every method at
// every pixel of an h×w grid.
type moments struct {
	h, w                int
	n                   []float64 // valid-pixel count per window
	sumS, sumR          []float64
	sumSR, sumSS, sumRR []float64
}

// computeMoments zeroes invalid pixels (per validMask) in s and r, then
// box-sums N, Σs, Σr, Σsr, Σs², Σr² over a kh×kw window.
func computeMoments(s, r []float64, validMask []bool, h, w, kh, kw int) moments {
	n := h * w
	maskVals := make([]float64, n)
	sVals := make([]float64, n)
	rVals := make([]float64, n)
	srVals := make([]float64, n)
	ssVals := make([]float64, n)
	rrVals := make([]float64, n)
	for i := 0; i < n; i++ {
		if !validMask[i] {
			continue
		}
		maskVals[i] = 1
		sv, rv := s[i], r[i]
		sVals[i] = sv
		rVals[i] = rv
		srVals[i] = sv * rv
		ssVals[i] = sv * sv
		rrVals[i] = rv * rv
	}
	return moments{
		h: h, w: w,
		n:     boxSum(maskVals, h, w, kh, kw),
		sumS:  boxSum(sVals, h, w, kh, kw),
		sumR:  boxSum(rVals, h, w, kh, kw),
		sumSR: boxSum(srVals, h, w, kh, kw),
		sumSS: boxSum(ssVals, h, w, kh, kw),
		sumRR: boxSum(rrVals, h, w, kh, kw),
	}
}

func isNaN32(v float32) bool { return math.IsNaN(float64(v)) }
