package raster

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
)

// ReprojectOptions configures Array.Reproject. A zero value reprojects in
// place: same CRS, transform and shape, default nodata/dtype/resampling.
type ReprojectOptions struct {
	WKT        string // empty = keep a's CRS
	Transform  *rfutil.GeoTransform
	Shape      *[2]int // [height, width]; required if Transform is set
	Nodata     float64
	Resampling radfuse.Resampling
}

// Reproject returns a new Array resampled into the CRS/transform/shape
// described by opts, built via a pair of in-memory (MEM-driver) datasets so
// the actual resampling is delegated to the raster I/O library's warp
// implementation.
func (a *Array) Reproject(opts ReprojectOptions) (*Array, error) {
	if opts.Transform != nil && opts.Shape == nil {
		return nil, radfuse.NewError(radfuse.ErrConfig, "raster.Reproject",
			fmt.Errorf("Shape must be set when Transform is set"))
	}
	dstWKT := opts.WKT
	if dstWKT == "" {
		dstWKT = a.wkt
	}
	dstTransform := a.transform
	dstH, dstW := a.height, a.width
	if opts.Transform != nil {
		dstTransform = *opts.Transform
		dstH, dstW = opts.Shape[0], opts.Shape[1]
	}
	nodata := opts.Nodata
	if nodata == 0 {
		nodata = math.NaN()
	}

	srcDS, err := godal.Create(godal.Memory, "", a.count, godal.Float32, a.width, a.height)
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
	}
	defer srcDS.Close()
	if err := srcDS.SetGeoTransform([6]float64(a.transform)); err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
	}
	if a.wkt != "" {
		if err := srcDS.SetProjection(a.wkt); err != nil {
			return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
		}
	}
	srcBands := srcDS.Bands()
	for i, b := range srcBands {
		if err := b.SetNoData(a.nodata); err != nil {
			return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
		}
		if err := b.Write(0, 0, a.Band(i), a.width, a.height); err != nil {
			return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
		}
	}

	dstDS, err := godal.Create(godal.Memory, "", a.count, godal.Float32, dstW, dstH)
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
	}
	defer dstDS.Close()
	if err := dstDS.SetGeoTransform([6]float64(dstTransform)); err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
	}
	if dstWKT != "" {
		if err := dstDS.SetProjection(dstWKT); err != nil {
			return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
		}
	}
	for _, b := range dstDS.Bands() {
		if err := b.SetNoData(nodata); err != nil {
			return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
		}
	}

	switches := []string{"-r", opts.Resampling.GDAL().String()}
	if err := dstDS.WarpInto([]*godal.Dataset{srcDS}, switches); err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
	}

	out := FromProfile(Profile{
		WKT: dstWKT, Transform: dstTransform, Nodata: nodata, Width: dstW, Height: dstH, Count: a.count,
	})
	for i, b := range dstDS.Bands() {
		if err := b.Read(0, 0, out.Band(i), dstW, dstH); err != nil {
			return nil, radfuse.NewError(radfuse.ErrIO, "raster.Reproject", err)
		}
	}
	return out, nil
}

// SliceToBounds returns a new Array cropped (sharing no storage) to the
// integer-rounded window containing the requested world bounds.
func (a *Array) SliceToBounds(minX, minY, maxX, maxY float64) (*Array, error) {
	fw, ok := rfutil.FromBounds(minX, minY, maxX, maxY, a.transform)
	if !ok {
		return nil, radfuse.NewError(radfuse.ErrShape, "raster.SliceToBounds", fmt.Errorf("transform is not invertible"))
	}
	w := rfutil.RoundToGrid(fw)
	grid := rfutil.Window{Row0: 0, Col0: 0, Height: a.height, Width: a.width}
	bounded := w.Intersect(grid)
	if bounded.Height <= 0 || bounded.Width <= 0 {
		return nil, radfuse.NewError(radfuse.ErrShape, "raster.SliceToBounds", nil)
	}
	out := FromProfile(Profile{
		WKT: a.wkt, Transform: rfutil.WindowTransform(bounded, a.transform),
		Nodata: a.nodata, Width: bounded.Width, Height: bounded.Height, Count: a.count,
	})
	for b := 0; b < a.count; b++ {
		src := a.Band(b)
		dst := out.Band(b)
		for r := 0; r < bounded.Height; r++ {
			srcRow := src[(bounded.Row0+r)*a.width+bounded.Col0 : (bounded.Row0+r)*a.width+bounded.Col0+bounded.Width]
			copy(dst[r*bounded.Width:(r+1)*bounded.Width], srcRow)
		}
	}
	return out, nil
}
