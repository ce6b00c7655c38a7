package rasterpair

import (
	"fmt"
	"math"

	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"go.uber.org/zap"
)

// BlockPair is an immutable set of matching source/reference block windows.
// *In windows include the configured halo; *Out windows are the
// non-overlapping write region. Outer is true iff the input window touches
// the source image's processing boundary.
type BlockPair struct {
	BandIndex int
	SrcIn     rfutil.Window
	RefIn     rfutil.Window
	SrcOut    rfutil.Window
	RefOut    rfutil.Window
	Outer     bool
}

const f32Size = 4

// autoBlockShape finds a proc-CRS block shape (rows, cols) satisfying
// maxBlockMemMB, halving the longer side of the full processing window
// until the budget (rescaled to the highest-resolution image equivalent)
// is met.
func (r *RasterPairReader) autoBlockShape(maxBlockMemMB float64) ([2]int, error) {
	var procWin rfutil.Window
	if r.procCRS == radfuse.ProcRef {
		procWin = r.refWin
	} else {
		procWin = r.srcWin
	}

	srcResX, srcResY, err := pixelRes(r.srcEff)
	if err != nil {
		return [2]int{}, err
	}
	refResX, refResY, err := pixelRes(r.refEff)
	if err != nil {
		return [2]int{}, err
	}
	srcPixArea := math.Abs(srcResX * srcResY)
	refPixArea := math.Abs(refResX * refResY)

	var memScale float64
	if r.procCRS == radfuse.ProcRef {
		if refPixArea > srcPixArea {
			memScale = srcPixArea / refPixArea
		} else {
			memScale = 1
		}
	} else {
		if refPixArea > srcPixArea {
			memScale = 1
		} else {
			memScale = refPixArea / srcPixArea
		}
	}

	maxBytes := math.Inf(1)
	if maxBlockMemMB > 0 && !math.IsInf(maxBlockMemMB, 1) {
		maxBytes = maxBlockMemMB * memScale * (1 << 20)
	}

	shapeH := float64(procWin.Height)
	shapeW := float64(procWin.Width)
	for shapeH*shapeW*f32Size > maxBytes {
		if shapeH >= shapeW {
			shapeH /= 2
		} else {
			shapeW /= 2
		}
	}
	if shapeH < 1 || shapeW < 1 {
		return [2]int{}, radfuse.NewError(radfuse.ErrBlockSize, "rasterpair.autoBlockShape",
			fmt.Errorf("the auto block shape is smaller than a pixel; increase max_block_mem"))
	}

	blockShape := [2]int{int(math.Ceil(shapeH)), int(math.Ceil(shapeW))}
	r.logger.Debug("auto block shape",
		zap.Int("rows", blockShape[0]), zap.Int("cols", blockShape[1]),
		zap.Int("proc_rows", procWin.Height), zap.Int("proc_cols", procWin.Width),
		zap.String("proc_crs", r.procCRS.String()))

	if (float64(blockShape[0])/memScale < 256 || float64(blockShape[1])/memScale < 256) &&
		(blockShape[0] < procWin.Height || blockShape[1] < procWin.Width) {
		r.logger.Warn("auto block shape is small; increase max_block_mem to improve processing times",
			zap.Int("rows", blockShape[0]), zap.Int("cols", blockShape[1]))
	}
	return blockShape, nil
}

// BlockPairs computes the full set of block pairs for a processing run with
// the given proc-CRS halo (rows, cols) and block-memory budget in MB.
// Blocks are ordered band-major so a band-interleaved backend streams
// sequentially within a band.
func (r *RasterPairReader) BlockPairs(overlap [2]int, maxBlockMemMB float64) ([]BlockPair, error) {
	if err := r.assertOpen(); err != nil {
		return nil, err
	}
	blockShape, err := r.autoBlockShape(maxBlockMemMB)
	if err != nil {
		return nil, err
	}
	if blockShape[0] <= overlap[0] || blockShape[1] <= overlap[1] {
		return nil, radfuse.NewError(radfuse.ErrBlockSize, "rasterpair.BlockPairs",
			fmt.Errorf("the auto block shape is smaller than the overlap; increase max_block_mem"))
	}

	var procWin rfutil.Window
	var procTransform, otherTransform rfutil.GeoTransform
	if r.procCRS == radfuse.ProcRef {
		procWin, procTransform, otherTransform = r.refWin, r.refEffTransform, r.srcEffTransform
	} else {
		procWin, procTransform, otherTransform = r.srcWin, r.srcEffTransform, r.refEffTransform
	}

	ulRow0 := procWin.Row0 - overlap[0]
	ulCol0 := procWin.Col0 - overlap[1]
	rowEnd := procWin.Row0 + procWin.Height - overlap[0]
	colEnd := procWin.Col0 + procWin.Width - overlap[1]

	var pairs []BlockPair
	for bandI := 0; bandI < len(r.srcBands); bandI++ {
		for ulRow := ulRow0; ulRow < rowEnd; ulRow += blockShape[0] {
			for ulCol := ulCol0; ulCol < colEnd; ulCol += blockShape[1] {
				brRow := ulRow + blockShape[0] + 2*overlap[0]
				brCol := ulCol + blockShape[1] + 2*overlap[1]

				inRow0 := maxInt(ulRow, procWin.Row0)
				inCol0 := maxInt(ulCol, procWin.Col0)
				inRow1 := minInt(brRow, procWin.Row0+procWin.Height)
				inCol1 := minInt(brCol, procWin.Col0+procWin.Width)

				outRow0 := maxInt(ulRow+overlap[0], procWin.Row0)
				outCol0 := maxInt(ulCol+overlap[1], procWin.Col0)
				outRow1 := minInt(brRow-overlap[0], procWin.Row0+procWin.Height)
				outCol1 := minInt(brCol-overlap[1], procWin.Col0+procWin.Width)

				outer := inRow0 <= procWin.Row0 || inCol0 <= procWin.Col0 ||
					inRow1 >= procWin.Row0+procWin.Height || inCol1 >= procWin.Col0+procWin.Width

				procIn := rfutil.Window{Row0: inRow0, Col0: inCol0, Height: inRow1 - inRow0, Width: inCol1 - inCol0}
				procOut := rfutil.Window{Row0: outRow0, Col0: outCol0, Height: outRow1 - outRow0, Width: outCol1 - outCol0}

				otherIn, err := warpWindowExpand(procIn, procTransform, otherTransform)
				if err != nil {
					return nil, err
				}
				otherOut, err := warpWindowRound(procOut, procTransform, otherTransform)
				if err != nil {
					return nil, err
				}

				var bp BlockPair
				if r.procCRS == radfuse.ProcRef {
					bp = BlockPair{BandIndex: bandI, SrcIn: otherIn, RefIn: procIn, SrcOut: otherOut, RefOut: procOut, Outer: outer}
				} else {
					bp = BlockPair{BandIndex: bandI, SrcIn: procIn, RefIn: otherIn, SrcOut: procOut, RefOut: otherOut, Outer: outer}
				}
				pairs = append(pairs, bp)
			}
		}
	}
	return pairs, nil
}

// warpWindowExpand converts a window from one grid to another via world
// bounds, expanding outward to an integer grid so a later resample back
// does not truncate valid pixels.
func warpWindowExpand(w rfutil.Window, fromT, toT rfutil.GeoTransform) (rfutil.Window, error) {
	minX, minY, maxX, maxY := w.Bounds(fromT)
	fw, ok := rfutil.FromBounds(minX, minY, maxX, maxY, toT)
	if !ok {
		return rfutil.Window{}, radfuse.NewError(radfuse.ErrFormat, "rasterpair.warpWindowExpand",
			fmt.Errorf("transform is not invertible"))
	}
	return rfutil.ExpandToGrid(fw, 0, 0), nil
}

// warpWindowRound is like warpWindowExpand but rounds to the nearest
// integer grid so consecutive outputs align without gaps or overlap.
func warpWindowRound(w rfutil.Window, fromT, toT rfutil.GeoTransform) (rfutil.Window, error) {
	minX, minY, maxX, maxY := w.Bounds(fromT)
	fw, ok := rfutil.FromBounds(minX, minY, maxX, maxY, toT)
	if !ok {
		return rfutil.Window{}, radfuse.NewError(radfuse.ErrFormat, "rasterpair.warpWindowRound",
			fmt.Errorf("transform is not invertible"))
	}
	return rfutil.RoundToGrid(fw), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
