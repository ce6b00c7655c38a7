package rfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowBounds(t *testing.T) {
	gt := GeoTransform{100, 2, 0, 200, 0, -2}
	w := Window{Row0: 5, Col0: 10, Height: 20, Width: 30}
	minX, minY, maxX, maxY := w.Bounds(gt)
	assert.InDelta(t, 120.0, minX, 1e-9)
	assert.InDelta(t, 180.0, maxX, 1e-9)
	assert.InDelta(t, 150.0, minY, 1e-9)
	assert.InDelta(t, 190.0, maxY, 1e-9)
}

func TestFromBoundsInverts(t *testing.T) {
	gt := GeoTransform{100, 2, 0, 200, 0, -2}
	w := Window{Row0: 5, Col0: 10, Height: 20, Width: 30}
	minX, minY, maxX, maxY := w.Bounds(gt)
	fw, ok := FromBounds(minX, minY, maxX, maxY, gt)
	assert.True(t, ok)
	assert.InDelta(t, float64(w.Row0), fw.Row0, 1e-9)
	assert.InDelta(t, float64(w.Col0), fw.Col0, 1e-9)
	assert.InDelta(t, float64(w.Height), fw.Height, 1e-9)
	assert.InDelta(t, float64(w.Width), fw.Width, 1e-9)
}

func TestExpandToGrid(t *testing.T) {
	fw := FloatWindow{Row0: 2.2, Col0: 3.8, Height: 10.1, Width: 5.3}
	ew := ExpandToGrid(fw, 1, 1)
	assert.LessOrEqual(t, ew.Row0, 1)
	assert.LessOrEqual(t, ew.Col0, 2)
	assert.GreaterOrEqual(t, ew.Row0+ew.Height, 14)
	assert.GreaterOrEqual(t, ew.Col0+ew.Width, 10)
}

func TestRoundToGrid(t *testing.T) {
	fw := FloatWindow{Row0: 2.49, Col0: 3.51, Height: 10.0, Width: 5.0}
	rw := RoundToGrid(fw)
	assert.Equal(t, 2, rw.Row0)
	assert.Equal(t, 4, rw.Col0)
}

func TestValidateKernelShape(t *testing.T) {
	assert.NoError(t, ValidateKernelShape([2]int{5, 5}, true))
	assert.Error(t, ValidateKernelShape([2]int{4, 5}, true))
	assert.Error(t, ValidateKernelShape([2]int{3, 3}, true))
	assert.NoError(t, ValidateKernelShape([2]int{1, 1}, false))
}

func TestCoversBounds(t *testing.T) {
	outer := Bounds{0, 0, 10, 10}
	inner := Bounds{1, 1, 9, 9}
	assert.True(t, Covers(outer, inner))
	assert.False(t, Covers(inner, outer))
}

func TestOutputPostfix(t *testing.T) {
	post := OutputPostfix("ref", "gain_offset", [2]int{5, 5}, "tif")
	assert.Equal(t, "_FUSE_cref_mgain_offset_k5_5.tif", post)
	assert.Equal(t, "foo_PARAMS.tif", ParamFilename("foo.tif"))
}

func TestResolveThreads(t *testing.T) {
	n, err := ResolveThreads(0)
	assert.NoError(t, err)
	assert.Greater(t, n, 0)
	_, err = ResolveThreads(-1)
	assert.Error(t, err)
}
