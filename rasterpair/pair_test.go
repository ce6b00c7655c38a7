package rasterpair

import (
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWKT = `PROJCS["WGS 84 / UTM zone 33N",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",15],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","32633"]]`

func writeTestTiff(t *testing.T, path string, w, h int, resX, resY, originX, originY float64, nodata float64) {
	t.Helper()
	godal.RegisterAll()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, w, h)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{originX, resX, 0, originY, 0, -resY}))
	require.NoError(t, ds.SetProjection(testWKT))
	bands := ds.Bands()
	require.NoError(t, bands[0].SetNoData(nodata))
	data := make([]float32, w*h)
	for i := range data {
		data[i] = float32(i)
	}
	require.NoError(t, bands[0].Write(0, 0, data, w, h))
	require.NoError(t, ds.Close())
}

func TestResolveProcCRSAuto(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.tif")
	refPath := filepath.Join(dir, "ref.tif")
	writeTestTiff(t, srcPath, 20, 20, 1, 1, 0, 20, -9999)
	writeTestTiff(t, refPath, 10, 10, 2, 2, 0, 20, -9999)

	proc, err := ResolveProcCRS(srcPath, refPath, radfuse.ProcAuto)
	require.NoError(t, err)
	assert.Equal(t, radfuse.ProcRef, proc)
}

func TestNewAndBlockPairsIdentity(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.tif")
	refPath := filepath.Join(dir, "ref.tif")
	writeTestTiff(t, srcPath, 12, 12, 1, 1, 0, 12, -9999)
	writeTestTiff(t, refPath, 12, 12, 1, 1, 0, 12, -9999)

	r, err := New(srcPath, refPath, radfuse.ProcAuto, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, r.SrcBands())
	assert.Equal(t, []int{1}, r.RefBands())

	require.NoError(t, r.Open())
	defer r.Close()

	pairs, err := r.BlockPairs([2]int{1, 1}, -1)
	require.NoError(t, err)
	require.NotEmpty(t, pairs)

	srcRA, refRA, err := r.Read(pairs[0])
	require.NoError(t, err)
	assert.Equal(t, srcRA.Height(), refRA.Height())
	assert.Equal(t, srcRA.Width(), refRA.Width())
}
