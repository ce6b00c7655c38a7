package fuse

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWKT = `PROJCS["WGS 84 / UTM zone 33N",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",15],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","32633"]]`

func writeTiff(t *testing.T, path string, w, h int, res, originX, originY float64, nodata float64, values []float32) {
	t.Helper()
	godal.RegisterAll()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, w, h)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{originX, res, 0, originY, 0, -res}))
	require.NoError(t, ds.SetProjection(testWKT))
	bands := ds.Bands()
	require.NoError(t, bands[0].SetNoData(nodata))
	require.NoError(t, bands[0].Write(0, 0, values, w, h))
	require.NoError(t, ds.Close())
}

func gridValues(h, w int, gen func(row, col int) float32) []float32 {
	out := make([]float32, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			out[r*w+c] = gen(r, c)
		}
	}
	return out
}

// TestProcessIdentityRecoversSource covers scenario S1: a source fused
// against an identical reference recovers the source unmasked, with a
// gain_blk_offset model.
func TestProcessIdentityRecoversSource(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.tif")
	refPath := filepath.Join(dir, "ref.tif")
	vals := gridValues(12, 12, func(r, c int) float32 { return float32(10 + r + c) })
	writeTiff(t, srcPath, 12, 12, 1, 0, 12, -9999, vals)
	writeTiff(t, refPath, 12, 12, 1, 0, 12, -9999, vals)

	logger := zap.NewNop()
	rf, err := New(srcPath, refPath, dir, radfuse.MethodGainBlockOffset, [2]int{5, 5}, radfuse.ProcAuto,
		DefaultHomoConfig(), kernel.DefaultModelConfig(), DefaultOutputProfile(), true, logger)
	require.NoError(t, err)
	require.NoError(t, rf.Open())
	require.NoError(t, rf.Process(context.Background()))
	require.NoError(t, rf.Close())

	outDS, err := godal.Open(rf.OutPath())
	require.NoError(t, err)
	defer outDS.Close()
	out := make([]float32, 12*12)
	require.NoError(t, outDS.Bands()[0].Read(0, 0, out, 12, 12))
	for i, v := range vals {
		assert.InDelta(t, v, out[i], 1e-3)
	}
}

// TestProcessFailsContentErrorBeforeWritingOutput covers Testable Property
// 4: a reference that does not cover the source fails with ContentError,
// and New never creates an output file.
func TestProcessFailsContentErrorBeforeWritingOutput(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.tif")
	refPath := filepath.Join(dir, "ref.tif")
	srcVals := gridValues(12, 12, func(r, c int) float32 { return float32(r + c) })
	refVals := gridValues(4, 4, func(r, c int) float32 { return float32(r + c) })
	writeTiff(t, srcPath, 12, 12, 1, 0, 12, -9999, srcVals)
	writeTiff(t, refPath, 4, 4, 1, 0, 4, -9999, refVals)

	_, err := New(srcPath, refPath, dir, radfuse.MethodGain, [2]int{3, 3}, radfuse.ProcAuto,
		DefaultHomoConfig(), kernel.DefaultModelConfig(), DefaultOutputProfile(), true, zap.NewNop())
	require.Error(t, err)
	var fe *radfuse.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, radfuse.ErrContent, fe.Kind)

	matches, statErr := filepath.Glob(filepath.Join(dir, "*FUSE*"))
	require.NoError(t, statErr)
	assert.Empty(t, matches)
}

// TestProcessWritesParameterBandLayout covers Testable Property 6: for
// source band b and plane p, the parameter file band index is p*N+b+1.
func TestProcessWritesParameterBandLayout(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.tif")
	refPath := filepath.Join(dir, "ref.tif")
	srcVals := gridValues(12, 12, func(r, c int) float32 { return float32(10 + r) })
	refVals := gridValues(12, 12, func(r, c int) float32 { return float32(8 + r) })
	writeTiff(t, srcPath, 12, 12, 1, 0, 12, -9999, srcVals)
	writeTiff(t, refPath, 12, 12, 1, 0, 12, -9999, refVals)

	homo := DefaultHomoConfig()
	homo.ParamImage = true
	rf, err := New(srcPath, refPath, dir, radfuse.MethodGainOffset, [2]int{5, 5}, radfuse.ProcAuto,
		homo, kernel.DefaultModelConfig(), DefaultOutputProfile(), true, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, rf.Open())
	require.NoError(t, rf.Process(context.Background()))
	require.NoError(t, rf.Close())

	paramDS, err := godal.Open(rf.ParamPath())
	require.NoError(t, err)
	defer paramDS.Close()
	st := paramDS.Structure()
	assert.Equal(t, 3, st.NBands)

	gain := make([]float32, 12*12)
	require.NoError(t, paramDS.Bands()[0].Read(0, 0, gain, 12, 12))
	center := 6*12 + 6
	require.False(t, math.IsNaN(float64(gain[center])))
	assert.InDelta(t, 1, gain[center], 0.2)
}

// TestProcessBlockCountInvariance covers scenario S6 and Testable Property
// 3: the corrected output is identical whether it is produced as one big
// block (a generous max-block-mem budget) or split into many small ones,
// and whether those blocks run sequentially (threads=1) or pooled.
func TestProcessBlockCountInvariance(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.tif")
	refPath := filepath.Join(dir, "ref.tif")
	vals := gridValues(30, 30, func(r, c int) float32 { return float32(5 + r%9 + 2*(c%5)) })
	writeTiff(t, srcPath, 30, 30, 1, 0, 30, -9999, vals)
	writeTiff(t, refPath, 30, 30, 1, 0, 30, -9999, vals)

	run := func(maxBlockMemMB float64, threads int) []float32 {
		outDir := t.TempDir()
		homo := DefaultHomoConfig()
		homo.MaxBlockMemMB = maxBlockMemMB
		homo.Threads = threads
		rf, err := New(srcPath, refPath, outDir, radfuse.MethodGainOffset, [2]int{5, 5}, radfuse.ProcAuto,
			homo, kernel.DefaultModelConfig(), DefaultOutputProfile(), true, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, rf.Open())
		require.NoError(t, rf.Process(context.Background()))
		require.NoError(t, rf.Close())

		ds, err := godal.Open(rf.OutPath())
		require.NoError(t, err)
		defer ds.Close()
		out := make([]float32, 30*30)
		require.NoError(t, ds.Bands()[0].Read(0, 0, out, 30, 30))
		return out
	}

	singleBlock := run(1000, 1)
	manyBlocksSequential := run(0.0005, 1)
	manyBlocksPooled := run(0.0005, 0)

	for i := range singleBlock {
		assert.InDelta(t, singleBlock[i], manyBlocksSequential[i], 1e-3)
		assert.InDelta(t, singleBlock[i], manyBlocksPooled[i], 1e-3)
	}
}
