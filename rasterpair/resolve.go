package rasterpair

import (
	"math"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"go.uber.org/zap"
)

func pixelRes(ds *godal.Dataset) (resX, resY float64, err error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return 0, 0, radfuse.NewError(radfuse.ErrIO, "rasterpair.pixelRes", err)
	}
	return math.Abs(gt[1]), math.Abs(gt[5]), nil
}

// resolveProcCRS resolves proc from auto to whichever of src/ref has the
// lower resolution (larger pixel area), warning if a forced value
// contradicts that heuristic.
func resolveProcCRS(srcDS, refDS *godal.Dataset, proc radfuse.ProcCRS, logger *zap.Logger) (radfuse.ProcCRS, error) {
	srcResX, srcResY, err := pixelRes(srcDS)
	if err != nil {
		return proc, err
	}
	refResX, refResY, err := pixelRes(refDS)
	if err != nil {
		return proc, err
	}
	srcPixelSmaller := math.Abs(srcResX*srcResY) <= math.Abs(refResX*refResY)

	if proc == radfuse.ProcAuto {
		if srcPixelSmaller {
			proc = radfuse.ProcRef
		} else {
			proc = radfuse.ProcSrc
		}
		logger.Debug("resolved proc_crs from auto",
			zap.String("proc_crs", proc.String()),
			zap.Float64("src_res_x", srcResX), zap.Float64("src_res_y", srcResY),
			zap.Float64("ref_res_x", refResX), zap.Float64("ref_res_y", refResY))
		return proc, nil
	}

	contradicts := (proc == radfuse.ProcSrc && srcPixelSmaller) || (proc == radfuse.ProcRef && !srcPixelSmaller)
	if contradicts {
		recommended := radfuse.ProcSrc
		if srcPixelSmaller {
			recommended = radfuse.ProcRef
		}
		logger.Warn("proc_crs does not correspond to the lowest resolution image",
			zap.String("proc_crs", proc.String()), zap.String("recommended", recommended.String()))
	}
	return proc, nil
}

// ResolveProcCRS resolves proc against a source/reference pair without
// committing to a full RasterPairReader.Open: it opens both datasets
// read-only, computes resolutions, and closes them again.
func ResolveProcCRS(srcPath, refPath string, proc radfuse.ProcCRS) (radfuse.ProcCRS, error) {
	srcDS, err := godal.Open(srcPath)
	if err != nil {
		return proc, radfuse.NewError(radfuse.ErrIO, "rasterpair.ResolveProcCRS", err)
	}
	defer srcDS.Close()
	refDS, err := godal.Open(refPath)
	if err != nil {
		return proc, radfuse.NewError(radfuse.ErrIO, "rasterpair.ResolveProcCRS", err)
	}
	defer refDS.Close()
	return resolveProcCRS(srcDS, refDS, proc, zap.NewNop())
}
