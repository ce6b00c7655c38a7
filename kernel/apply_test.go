package kernel

import (
	"math"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLinearMaskPreservation(t *testing.T) {
	godal.RegisterAll()
	const h, w = 8, 8
	src := make([]float32, h*w)
	ref := make([]float32, h*w)
	for i := range src {
		src[i] = float32(i + 1)
		ref[i] = src[i]*0.8 + 10
	}
	src[0] = -9999
	srcA := flatArray(src, h, w, -9999)
	refA := flatArray(ref, h, w, -9999)

	m, err := New(radfuse.MethodGainOffset, [2]int{5, 5}, false, DefaultModelConfig(), nil)
	require.NoError(t, err)
	param, err := m.Fit(refA, srcA)
	require.NoError(t, err)

	out := applyLinear(srcA, param, radfuse.MethodGainOffset)
	assert.Equal(t, float32(-9999), out.Band(0)[0])
	for i := 1; i < h*w; i++ {
		assert.InDelta(t, float64(ref[i]), float64(out.Band(0)[i]), 1)
	}
}

func TestApplyLinearGainOnly(t *testing.T) {
	const h, w = 6, 6
	src := make([]float32, h*w)
	for i := range src {
		src[i] = float32(i + 1)
	}
	srcA := flatArray(src, h, w, -9999)

	param := flatArray(make([]float32, h*w), h, w, math.NaN())
	for i := range param.Band(0) {
		param.Band(0)[i] = 2
	}

	out := applyLinear(srcA, param, radfuse.MethodGain)
	for i := range src {
		assert.InDelta(t, float64(src[i])*2, float64(out.Band(0)[i]), 1e-5)
	}
}

// TestRefSpaceModelMaskPartialErosion covers scenario S5 and Testable
// Property 8: a reference with a gap wide enough to starve some 5x5 fit
// windows of any valid pixel masks a contiguous blob of output pixels
// around that gap, while pixels well away from it are left untouched.
func TestRefSpaceModelMaskPartialErosion(t *testing.T) {
	godal.RegisterAll()
	const h, w = 20, 20
	vals := make([]float32, h*w)
	for i := range vals {
		vals[i] = float32(i%7 + 1)
	}
	src := flatArray(vals, h, w, -9999)
	refVals := append([]float32(nil), vals...)
	// A 7x7 hole centered on (10, 10): the fit windows centered at rows/cols
	// 9..11 sit entirely inside it and get zero valid reference pixels.
	const gapRow, gapCol, gapRadius = 10, 10, 3
	for row := gapRow - gapRadius; row <= gapRow+gapRadius; row++ {
		for col := gapCol - gapRadius; col <= gapCol+gapRadius; col++ {
			refVals[row*w+col] = -9999
		}
	}
	ref := flatArray(refVals, h, w, -9999)

	cfg := DefaultModelConfig()
	cfg.MaskPartial = true
	m, err := NewRefSpaceModel(radfuse.MethodGainOffset, [2]int{5, 5}, true, cfg, nil)
	require.NoError(t, err)
	out, _, err := m.FitApply(src, ref)
	require.NoError(t, err)

	outBand := out.Band(0)
	outNodata := float32(out.Nodata())
	maskedCount := 0
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := row*w + col
			dRow, dCol := row-gapRow, col-gapCol
			if dRow < 0 {
				dRow = -dRow
			}
			if dCol < 0 {
				dCol = -dCol
			}
			farFromGap := dRow > 6 || dCol > 6
			if farFromGap {
				assert.NotEqualf(t, outNodata, outBand[i], "pixel (%d,%d) far from the gap should not be masked", row, col)
			} else if outBand[i] == outNodata {
				maskedCount++
			}
		}
	}
	assert.Greater(t, maskedCount, 0, "the gap's starved fit windows should mask at least one output pixel")
}

func TestRefSpaceModelIdentity(t *testing.T) {
	godal.RegisterAll()
	const h, w = 12, 12
	vals := make([]float32, h*w)
	for i := range vals {
		vals[i] = float32(i + 1)
	}
	src := flatArray(vals, h, w, -9999)
	ref := flatArray(append([]float32(nil), vals...), h, w, -9999)

	m, err := NewRefSpaceModel(radfuse.MethodGainBlockOffset, [2]int{5, 5}, false, DefaultModelConfig(), nil)
	require.NoError(t, err)
	out, param, err := m.FitApply(src, ref)
	require.NoError(t, err)
	require.NotNil(t, param)

	for i := range vals {
		assert.InDelta(t, float64(vals[i]), float64(out.Band(0)[i]), 1)
	}
}
