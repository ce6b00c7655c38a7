package raster

import (
	"math"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
)

// boundedWindowSlices intersects window with the dataset's [0,0,w,h) pixel
// grid and returns the bounded dataset window together with the row/col
// offsets into a window.Height x window.Width buffer that it corresponds
// to. This is the core's own boundless-read emulation: the raster I/O
// library is not asked to read out-of-bounds pixels.
func boundedWindowSlices(window rfutil.Window, dsW, dsH int) (bounded rfutil.Window, offRow, offCol int) {
	grid := rfutil.Window{Row0: 0, Col0: 0, Height: dsH, Width: dsW}
	bounded = window.Intersect(grid)
	offRow = bounded.Row0 - window.Row0
	offCol = bounded.Col0 - window.Col0
	return
}

// FromDataset performs a windowed read of indexes (1-based band indices)
// from ds into a new Array. Pixels outside the dataset's extent are filled
// with nodata rather than requested from the raster I/O library as a
// boundless read. If any of indexes carries a dataset or alpha mask,
// masked-out pixels are also set to nodata.
func FromDataset(ds *godal.Dataset, indexes []int, window rfutil.Window) (*Array, error) {
	st := ds.Structure()
	nodata := DefaultNodata
	isMasked := rfutil.IsMasked(ds, indexes)
	if nd, ok := ds.Bands()[indexes[0]-1].NoData(); ok && !isMasked {
		nodata = nd
	} else {
		nodata = math.NaN()
	}

	n := window.Height * window.Width
	data := make([]float32, len(indexes)*n)
	nd32 := float32(nodata)
	for i := range data {
		data[i] = nd32
	}

	bounded, offRow, offCol := boundedWindowSlices(window, st.SizeX, st.SizeY)
	if bounded.Width > 0 && bounded.Height > 0 {
		bands := ds.Bands()
		for bi, idx := range indexes {
			band := bands[idx-1]
			sub := make([]float32, bounded.Width*bounded.Height)
			if err := band.Read(bounded.Col0, bounded.Row0, sub, bounded.Width, bounded.Height); err != nil {
				return nil, radfuse.NewError(radfuse.ErrIO, "raster.FromDataset", err)
			}
			dst := data[bi*n : (bi+1)*n]
			for r := 0; r < bounded.Height; r++ {
				srcRow := sub[r*bounded.Width : (r+1)*bounded.Width]
				dstRow := dst[(offRow+r)*window.Width+offCol : (offRow+r)*window.Width+offCol+bounded.Width]
				copy(dstRow, srcRow)
			}
		}
		if isMasked {
			maskBuf := make([]byte, bounded.Width*bounded.Height)
			if err := readDatasetMask(ds, bounded, maskBuf); err == nil {
				for bi := range indexes {
					dst := data[bi*n : (bi+1)*n]
					for r := 0; r < bounded.Height; r++ {
						for c := 0; c < bounded.Width; c++ {
							if maskBuf[r*bounded.Width+c] == 0 {
								dst[(offRow+r)*window.Width+offCol+c] = nd32
							}
						}
					}
				}
			}
		}
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "raster.FromDataset", err)
	}
	t := rfutil.WindowTransform(window, rfutil.GeoTransform(gt))
	return &Array{
		data: data, count: len(indexes), height: window.Height, width: window.Width,
		wkt: ds.Projection(), transform: t, nodata: nodata,
	}, nil
}

// readDatasetMask reads ds's dataset-level validity mask (mask band or
// alpha-derived) for window into buf, one byte per pixel, 0 = invalid.
// Implemented via the first band's own mask band, which godal exposes like
// any other Band.
func readDatasetMask(ds *godal.Dataset, window rfutil.Window, buf []byte) error {
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil
	}
	maskBand := bands[0].MaskBand()
	return maskBand.Read(window.Col0, window.Row0, buf, window.Width, window.Height)
}

// ToDataset writes a into ds at indexes (1-based band indices), cropping
// window to the dataset's extent and a accordingly. It fails with
// *radfuse.Error{Kind: ErrFormat} if ds's projection does not match a's, if
// indexes exceed the dataset band count, or if the cropped array has a
// zero-length dimension.
func (a *Array) ToDataset(ds *godal.Dataset, indexes []int, window rfutil.Window) error {
	if ds.Projection() != "" && a.wkt != "" && ds.Projection() != a.wkt {
		return radfuse.NewError(radfuse.ErrFormat, "raster.ToDataset", nil)
	}
	st := ds.Structure()
	for _, idx := range indexes {
		if idx > st.NBands {
			return radfuse.NewError(radfuse.ErrFormat, "raster.ToDataset", nil)
		}
	}
	if len(indexes) > a.count {
		return radfuse.NewError(radfuse.ErrShape, "raster.ToDataset", nil)
	}

	bounded, offRow, offCol := boundedWindowSlices(window, st.SizeX, st.SizeY)
	if bounded.Width <= 0 || bounded.Height <= 0 {
		return radfuse.NewError(radfuse.ErrFormat, "raster.ToDataset", nil)
	}

	bands := ds.Bands()
	for bi, idx := range indexes {
		src := a.Band(bi)
		sub := make([]float32, bounded.Width*bounded.Height)
		for r := 0; r < bounded.Height; r++ {
			srcRow := src[(offRow+r)*a.width+offCol : (offRow+r)*a.width+offCol+bounded.Width]
			copy(sub[r*bounded.Width:(r+1)*bounded.Width], srcRow)
		}
		if err := bands[idx-1].Write(bounded.Col0, bounded.Row0, sub, bounded.Width, bounded.Height); err != nil {
			return radfuse.NewError(radfuse.ErrIO, "raster.ToDataset", err)
		}
	}
	return nil
}
