// Copyright 2024 The radfuse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rasterpair

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/geofuse/radfuse/raster"
	"go.uber.org/zap"
)

// RasterPairReader opens a source/reference image pair for paired,
// boundary-safe, block-at-a-time reading. Source and reference dataset
// handles are exclusively owned here; callers access pixel data only
// through Read.
type RasterPairReader struct {
	srcPath, refPath string
	procCRS          radfuse.ProcCRS
	logger           *zap.Logger

	srcBands, refBands []int // 1-based, non-alpha

	// processing extents, in each image's effective pixel grid (the
	// warped view's grid where one is used), expanded outward to an integer grid so that reprojection between
	// them loses no valid data. Computed once, independent of open/close.
	srcWin, refWin rfutil.Window

	srcDS, refDS           *godal.Dataset
	srcEff, refEff         *godal.Dataset // possibly a CRS-reconciled warped view
	srcEffWarped           bool
	refEffWarped           bool
	srcEffTransform        rfutil.GeoTransform
	refEffTransform        rfutil.GeoTransform

	srcLock, refLock sync.Mutex
}

// ProcCRS reports which of the source/reference grids processing is
// anchored in.
func (r *RasterPairReader) ProcCRS() radfuse.ProcCRS { return r.procCRS }

// SrcBands returns the source's 1-based non-alpha band indices.
func (r *RasterPairReader) SrcBands() []int { return r.srcBands }

// RefBands returns the reference's 1-based non-alpha band indices
// (truncated to len(SrcBands()) if the reference carried more).
func (r *RasterPairReader) RefBands() []int { return r.refBands }

// SrcDataset returns the native (unwarped) source dataset handle, for
// callers that need metadata access beyond pixel reads (e.g. copying band
// descriptions/tags to an output file). Returns nil if not open.
func (r *RasterPairReader) SrcDataset() *godal.Dataset { return r.srcDS }

// RefDataset returns the native (unwarped) reference dataset handle.
// Returns nil if not open.
func (r *RasterPairReader) RefDataset() *godal.Dataset { return r.refDS }

// SrcPath returns the source image path.
func (r *RasterPairReader) SrcPath() string { return r.srcPath }

// RefPath returns the reference image path.
func (r *RasterPairReader) RefPath() string { return r.refPath }

// Closed reports whether the underlying datasets are not currently open.
func (r *RasterPairReader) Closed() bool {
	return r.srcDS == nil || r.refDS == nil
}

func (r *RasterPairReader) assertOpen() error {
	if r.Closed() {
		return radfuse.NewError(radfuse.ErrIO, "rasterpair",
			fmt.Errorf("the raster pair has not been opened: %s and %s", r.srcPath, r.refPath))
	}
	return nil
}

// New opens src/ref once to resolve proc, validate the pair, and compute
// their aligned processing windows, then closes them again. The returned
// reader must have Open called before Read or BlockPairs is used.
func New(srcPath, refPath string, proc radfuse.ProcCRS, logger *zap.Logger) (*RasterPairReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	srcDS, err := godal.Open(srcPath)
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "rasterpair.New", err)
	}
	refDS, err := godal.Open(refPath)
	if err != nil {
		srcDS.Close()
		return nil, radfuse.NewError(radfuse.ErrIO, "rasterpair.New", err)
	}
	resolved, err := resolveProcCRS(srcDS, refDS, proc, logger)
	srcDS.Close()
	refDS.Close()
	if err != nil {
		return nil, err
	}
	r := &RasterPairReader{srcPath: srcPath, refPath: refPath, procCRS: resolved, logger: logger}
	if err := r.Open(); err != nil {
		return nil, err
	}
	defer r.Close()

	srcBands, refBands, err := validateImagePair(r.srcDS, r.refDS, srcPath, refPath, logger)
	if err != nil {
		return nil, err
	}
	r.srcBands = srcBands
	r.refBands = refBands

	srcGT, err := r.srcEff.GeoTransform()
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "rasterpair.New", err)
	}
	refGT, err := r.refEff.GeoTransform()
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "rasterpair.New", err)
	}

	// ref_win: the window, in ref pixels, covering src's bounds, expanded
	// to an integer grid.
	srcBounds, err := r.srcEff.Bounds()
	if err != nil {
		return nil, radfuse.NewError(radfuse.ErrIO, "rasterpair.New", err)
	}
	refFW, ok := rfutil.FromBounds(srcBounds[0], srcBounds[1], srcBounds[2], srcBounds[3], rfutil.GeoTransform(refGT))
	if !ok {
		return nil, radfuse.NewError(radfuse.ErrFormat, "rasterpair.New", fmt.Errorf("reference transform is not invertible"))
	}
	r.refWin = rfutil.ExpandToGrid(refFW, 0, 0)

	// src_win: the window, in src pixels, covering ref_win's bounds,
	// expanded to an integer grid.
	refWinBounds := boundsOf(r.refWin, rfutil.GeoTransform(refGT))
	srcFW, ok := rfutil.FromBounds(refWinBounds[0], refWinBounds[1], refWinBounds[2], refWinBounds[3], rfutil.GeoTransform(srcGT))
	if !ok {
		return nil, radfuse.NewError(radfuse.ErrFormat, "rasterpair.New", fmt.Errorf("source transform is not invertible"))
	}
	r.srcWin = rfutil.ExpandToGrid(srcFW, 0, 0)

	return r, nil
}

func boundsOf(w rfutil.Window, gt rfutil.GeoTransform) rfutil.Bounds {
	minX, minY, maxX, maxY := w.Bounds(gt)
	return rfutil.Bounds{minX, minY, maxX, maxY}
}

// Open opens the source and reference datasets for reading. If their CRSs
// differ, the non-proc-CRS image is presented through a warped (VRT) view
// in the proc-CRS image's CRS, using bilinear resampling, so that rectangular
// valid-data regions in one reproject to rectangular valid-data regions in
// the other.
func (r *RasterPairReader) Open() error {
	srcDS, err := godal.Open(r.srcPath)
	if err != nil {
		return radfuse.NewError(radfuse.ErrIO, "rasterpair.Open", err)
	}
	refDS, err := godal.Open(r.refPath)
	if err != nil {
		srcDS.Close()
		return radfuse.NewError(radfuse.ErrIO, "rasterpair.Open", err)
	}
	r.srcDS, r.refDS = srcDS, refDS
	r.srcEff, r.refEff = srcDS, refDS
	r.srcEffWarped, r.refEffWarped = false, false

	if srcDS.Projection() != refDS.Projection() && srcDS.Projection() != "" && refDS.Projection() != "" {
		switches := []string{"-r", "bilinear", "-t_srs", targetSRS(r.procCRS, srcDS, refDS)}
		if r.procCRS == radfuse.ProcSrc {
			warped, err := refDS.Warp("", switches, godal.VRT)
			if err != nil {
				r.closeRaw()
				return radfuse.NewError(radfuse.ErrIO, "rasterpair.Open", err)
			}
			r.refEff = warped
			r.refEffWarped = true
		} else {
			warped, err := srcDS.Warp("", switches, godal.VRT)
			if err != nil {
				r.closeRaw()
				return radfuse.NewError(radfuse.ErrIO, "rasterpair.Open", err)
			}
			r.srcEff = warped
			r.srcEffWarped = true
		}
	}

	srcGT, err := r.srcEff.GeoTransform()
	if err != nil {
		r.closeRaw()
		return radfuse.NewError(radfuse.ErrIO, "rasterpair.Open", err)
	}
	refGT, err := r.refEff.GeoTransform()
	if err != nil {
		r.closeRaw()
		return radfuse.NewError(radfuse.ErrIO, "rasterpair.Open", err)
	}
	r.srcEffTransform = rfutil.GeoTransform(srcGT)
	r.refEffTransform = rfutil.GeoTransform(refGT)
	return nil
}

// targetSRS returns the WKT that the non-proc image should be warped into:
// the proc image's own projection.
func targetSRS(proc radfuse.ProcCRS, srcDS, refDS *godal.Dataset) string {
	if proc == radfuse.ProcSrc {
		return srcDS.Projection()
	}
	return refDS.Projection()
}

func (r *RasterPairReader) closeRaw() {
	if r.srcEffWarped && r.srcEff != nil {
		r.srcEff.Close()
	}
	if r.refEffWarped && r.refEff != nil {
		r.refEff.Close()
	}
	if r.srcDS != nil {
		r.srcDS.Close()
	}
	if r.refDS != nil {
		r.refDS.Close()
	}
	r.srcDS, r.refDS, r.srcEff, r.refEff = nil, nil, nil, nil
}

// Close closes the source and reference datasets (and any warped view).
func (r *RasterPairReader) Close() error {
	r.closeRaw()
	return nil
}

// Read performs a thread-safe read of a matching pair of source/reference
// blocks described by bp, returning them as canonical f32 RasterArrays.
func (r *RasterPairReader) Read(bp BlockPair) (*raster.Array, *raster.Array, error) {
	if err := r.assertOpen(); err != nil {
		return nil, nil, err
	}
	r.srcLock.Lock()
	srcRA, err := raster.FromDataset(r.srcEff, []int{r.srcBands[bp.BandIndex]}, bp.SrcIn)
	r.srcLock.Unlock()
	if err != nil {
		return nil, nil, err
	}

	r.refLock.Lock()
	refRA, err := raster.FromDataset(r.refEff, []int{r.refBands[bp.BandIndex]}, bp.RefIn)
	r.refLock.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return srcRA, refRA, nil
}
