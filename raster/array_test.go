package raster

import (
	"math"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransform() rfutil.GeoTransform {
	return rfutil.GeoTransform{100, 2, 0, 200, 0, -2}
}

func TestNewRejectsBadShape(t *testing.T) {
	_, err := New(make([]float32, 4), 1, 2, 3, "", testTransform(), 0)
	assert.Error(t, err)
}

func TestFromProfileFillsNodata(t *testing.T) {
	a := FromProfile(Profile{Nodata: -9999, Width: 3, Height: 2, Count: 2, Transform: testTransform()})
	for _, v := range a.Data() {
		assert.Equal(t, float32(-9999), v)
	}
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, 2, a.Height())
	assert.Equal(t, 3, a.Width())
}

func TestMaskAndSetMask(t *testing.T) {
	a := FromProfile(Profile{Nodata: 0, Width: 2, Height: 1, Count: 2})
	copy(a.Band(0), []float32{1, 2})
	copy(a.Band(1), []float32{1, 0})
	mask := a.Mask()
	assert.Equal(t, []bool{true, false}, mask)

	a.SetMask([]bool{false, true})
	assert.Equal(t, float32(0), a.Band(0)[0])
	assert.Equal(t, float32(2), a.Band(0)[1])
}

func TestSetNodataPreservesInvariant(t *testing.T) {
	a := FromProfile(Profile{Nodata: 0, Width: 2, Height: 1, Count: 1})
	copy(a.Band(0), []float32{0, 5})
	a.SetNodata(-1)
	assert.Equal(t, float32(-1), a.Band(0)[0])
	assert.Equal(t, float32(5), a.Band(0)[1])
	assert.Equal(t, float64(-1), a.Nodata())
}

func TestSetNodataNaNAware(t *testing.T) {
	a := FromProfile(Profile{Nodata: math.NaN(), Width: 2, Height: 1, Count: 1})
	copy(a.Band(0), []float32{float32(math.NaN()), 5})
	a.SetNodata(math.NaN())
	assert.True(t, math.IsNaN(float64(a.Band(0)[0])))
	assert.Equal(t, float32(5), a.Band(0)[1])
}

func TestCloneDeepVsShallow(t *testing.T) {
	a := FromProfile(Profile{Width: 2, Height: 1, Count: 1})
	copy(a.Band(0), []float32{1, 2})

	shallow := a.Clone(false)
	shallow.Band(0)[0] = 99
	assert.Equal(t, float32(99), a.Band(0)[0])

	a.Band(0)[0] = 1
	deep := a.Clone(true)
	deep.Band(0)[0] = 42
	assert.Equal(t, float32(1), a.Band(0)[0])
}

func TestFromDatasetToDatasetRoundTrip(t *testing.T) {
	godal.RegisterAll()
	ds, err := godal.Create(godal.Memory, "", 2, godal.Float32, 4, 3)
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.SetGeoTransform([6]float64(testTransform())))
	bands := ds.Bands()
	for _, b := range bands {
		require.NoError(t, b.SetNoData(-9999))
	}
	data1 := make([]float32, 12)
	for i := range data1 {
		data1[i] = float32(i)
	}
	require.NoError(t, bands[0].Write(0, 0, data1, 4, 3))
	require.NoError(t, bands[1].Write(0, 0, data1, 4, 3))

	arr, err := FromDataset(ds, []int{1, 2}, rfutil.Window{Row0: 0, Col0: 0, Height: 3, Width: 4})
	require.NoError(t, err)
	assert.Equal(t, float64(-9999), arr.Nodata())
	assert.Equal(t, data1, arr.Band(0))

	arr.Band(0)[0] = 7
	require.NoError(t, arr.ToDataset(ds, []int{1}, rfutil.Window{Row0: 0, Col0: 0, Height: 3, Width: 4}))

	roundTrip, err := FromDataset(ds, []int{1}, rfutil.Window{Row0: 0, Col0: 0, Height: 3, Width: 4})
	require.NoError(t, err)
	assert.Equal(t, float32(7), roundTrip.Band(0)[0])
}

func TestFromDatasetBoundlessRead(t *testing.T) {
	godal.RegisterAll()
	ds, err := godal.Create(godal.Memory, "", 1, godal.Float32, 2, 2)
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.SetGeoTransform([6]float64(testTransform())))
	bands := ds.Bands()
	require.NoError(t, bands[0].SetNoData(-1))
	require.NoError(t, bands[0].Write(0, 0, []float32{1, 2, 3, 4}, 2, 2))

	// window extends one pixel past the dataset on every side.
	arr, err := FromDataset(ds, []int{1}, rfutil.Window{Row0: -1, Col0: -1, Height: 4, Width: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, arr.Height())
	assert.Equal(t, 4, arr.Width())
	// the interior 2x2 should carry the source pixels, the border nodata.
	assert.Equal(t, float32(-1), arr.Band(0)[0])
	assert.Equal(t, float32(1), arr.Band(0)[1*4+1])
	assert.Equal(t, float32(4), arr.Band(0)[2*4+2])
}

func TestReprojectIdentity(t *testing.T) {
	godal.RegisterAll()
	a := FromProfile(Profile{WKT: "", Nodata: -1, Width: 4, Height: 4, Count: 1, Transform: testTransform()})
	for i := range a.Data() {
		a.Data()[i] = float32(i)
	}
	out, err := a.Reproject(ReprojectOptions{Nodata: -1})
	require.NoError(t, err)
	assert.Equal(t, a.Height(), out.Height())
	assert.Equal(t, a.Width(), out.Width())
}

func TestSliceToBounds(t *testing.T) {
	a := FromProfile(Profile{Nodata: 0, Width: 10, Height: 10, Count: 1, Transform: testTransform()})
	for i := range a.Data() {
		a.Data()[i] = float32(i)
	}
	minX, minY, maxX, maxY := rfutil.Window{Row0: 2, Col0: 2, Height: 4, Width: 4}.Bounds(a.Transform())
	out, err := a.SliceToBounds(minX, minY, maxX, maxY)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Height())
	assert.Equal(t, 4, out.Width())
	assert.Equal(t, a.Band(0)[2*10+2], out.Band(0)[0])
}
