package kernel

import (
	"math"
	"testing"

	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/geofuse/radfuse/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatArray(vals []float32, h, w int, nodata float64) *raster.Array {
	a, err := raster.New(vals, 1, h, w, "", rfutil.GeoTransform{0, 1, 0, 0, 0, -1}, nodata)
	if err != nil {
		panic(err)
	}
	return a
}

func TestNewRejectsEvenKernel(t *testing.T) {
	_, err := New(radfuse.MethodGain, [2]int{4, 5}, false, DefaultModelConfig(), nil)
	require.Error(t, err)
	var fe *radfuse.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, radfuse.ErrConfig, fe.Kind)
}

func TestNewRejectsSmallGainOffsetKernel(t *testing.T) {
	_, err := New(radfuse.MethodGainOffset, [2]int{3, 3}, false, DefaultModelConfig(), nil)
	require.Error(t, err)
}

func TestFitGainScaleInvariance(t *testing.T) {
	const h, w = 10, 10
	src := make([]float32, h*w)
	ref := make([]float32, h*w)
	for i := range src {
		src[i] = float32(10 + i)
		ref[i] = src[i] / 2
	}
	srcA := flatArray(src, h, w, -9999)
	refA := flatArray(ref, h, w, -9999)

	m, err := New(radfuse.MethodGain, [2]int{1, 1}, false, DefaultModelConfig(), nil)
	require.NoError(t, err)
	param, err := m.Fit(refA, srcA)
	require.NoError(t, err)

	for _, g := range param.Band(0) {
		require.False(t, math.IsNaN(float64(g)))
		assert.InDelta(t, 0.5, g, 1e-4)
	}
}

func TestFitGainOffsetAffineRecovery(t *testing.T) {
	const h, w = 12, 12
	src := make([]float32, h*w)
	ref := make([]float32, h*w)
	for i := range src {
		src[i] = float32(i % 50)
		ref[i] = 0.8*src[i] + 10
	}
	srcA := flatArray(src, h, w, -9999)
	refA := flatArray(ref, h, w, -9999)

	m, err := New(radfuse.MethodGainOffset, [2]int{5, 5}, false, DefaultModelConfig(), nil)
	require.NoError(t, err)
	param, err := m.Fit(refA, srcA)
	require.NoError(t, err)
	require.Equal(t, 3, param.Count())

	gain, offset, r2 := param.Band(0), param.Band(1), param.Band(2)
	for i := range gain {
		assert.InDelta(t, 0.8, gain[i], 1e-3)
		assert.InDelta(t, 10, offset[i], 1e-2)
		assert.InDelta(t, 1, r2[i], 1e-3)
	}
}

func TestFitGainBlockOffsetEmitsScalarOffset(t *testing.T) {
	const h, w = 10, 10
	src := make([]float32, h*w)
	ref := make([]float32, h*w)
	for i := range src {
		src[i] = float32(i + 1)
		ref[i] = src[i] * 2
	}
	srcA := flatArray(src, h, w, -9999)
	refA := flatArray(ref, h, w, -9999)

	m, err := New(radfuse.MethodGainBlockOffset, [2]int{5, 5}, false, DefaultModelConfig(), nil)
	require.NoError(t, err)
	param, err := m.Fit(refA, srcA)
	require.NoError(t, err)

	offset := param.Band(1)
	first := offset[0]
	for _, o := range offset {
		assert.Equal(t, first, o)
	}
}

func TestFitGainOffsetR2InpaintingReplacesNoisyOffsets(t *testing.T) {
	const h, w = 13, 13
	src := make([]float32, h*w)
	ref := make([]float32, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := r*w + c
			s := float32(r*w + c + 1)
			src[i] = s
			ref[i] = 0.9*s + 5
		}
	}
	// Corrupt a 3x3 interior block with noise breaking the affine relation.
	noise := []float32{-500, 900, -300, 700, -800, 400, -600, 300, -100}
	k := 0
	for r := 5; r <= 7; r++ {
		for c := 5; c <= 7; c++ {
			ref[r*w+c] += noise[k]
			k++
		}
	}
	srcA := flatArray(src, h, w, -9999)
	refA := flatArray(ref, h, w, -9999)

	cfg := DefaultModelConfig()
	cfg.R2InpaintThresh = 0.5
	m, err := New(radfuse.MethodGainOffset, [2]int{5, 5}, false, cfg, nil)
	require.NoError(t, err)
	param, err := m.Fit(refA, srcA)
	require.NoError(t, err)

	offset := param.Band(0 + 1)
	center := offset[6*w+6]
	// The surrounding clean relationship has offset close to 5; inpainting
	// should have pulled the noisy center toward that, not left it wild.
	assert.InDelta(t, 5, center, 3)

	cfgNoInpaint := DefaultModelConfig()
	m2, err := New(radfuse.MethodGainOffset, [2]int{5, 5}, false, cfgNoInpaint, nil)
	require.NoError(t, err)
	param2, err := m2.Fit(refA, srcA)
	require.NoError(t, err)
	offsetNoInpaint := param2.Band(1)
	assert.NotEqual(t, offset[6*w+6], offsetNoInpaint[6*w+6])
}

func TestFitSkipsInvalidPixels(t *testing.T) {
	const h, w = 6, 6
	src := make([]float32, h*w)
	ref := make([]float32, h*w)
	for i := range src {
		src[i] = float32(i + 1)
		ref[i] = src[i]
	}
	src[0] = -9999
	srcA := flatArray(src, h, w, -9999)
	refA := flatArray(ref, h, w, -9999)

	m, err := New(radfuse.MethodGain, [2]int{3, 3}, false, DefaultModelConfig(), nil)
	require.NoError(t, err)
	param, err := m.Fit(refA, srcA)
	require.NoError(t, err)
	// pixel 0's own value is invalid, but its 3x3 window still has other
	// valid src/ref pairs (identical arrays), so gain should still recover.
	require.False(t, math.IsNaN(float64(param.Band(0)[0])))
	assert.InDelta(t, 1, param.Band(0)[0], 1e-4)
}
