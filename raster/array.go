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

// Package raster implements RasterArray: an in-memory, band-major f32 pixel
// buffer carrying its own CRS, affine transform and nodata value, with
// windowed read/write to godal datasets, cropping and reprojection.
package raster

import (
	"math"

	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
)

// DefaultNodata is the placeholder FromDataset starts from; it always
// replaces it with the band's own nodata value, or with NaN when the band
// has none or the dataset is masked.
const DefaultNodata = float64(0)

var defaultNaN = math.NaN()

// Array is a banded pixel buffer of shape (Count, Height, Width), row-major
// within each band, bands stored consecutively. Its identity (shape, CRS,
// transform) is immutable once constructed; only pixel contents are mutable.
type Array struct {
	data      []float32
	count     int
	height    int
	width     int
	wkt       string
	transform rfutil.GeoTransform
	nodata    float64
}

// New builds an Array from a pre-populated band-major buffer. It returns a
// *radfuse.Error{Kind: ErrShape} if data's length doesn't match
// count*height*width.
func New(data []float32, count, height, width int, wkt string, transform rfutil.GeoTransform, nodata float64) (*Array, error) {
	if len(data) != count*height*width {
		return nil, radfuse.NewError(radfuse.ErrShape, "raster.New", nil)
	}
	return &Array{
		data: data, count: count, height: height, width: width,
		wkt: wkt, transform: transform, nodata: nodata,
	}, nil
}

// Profile describes the georeferencing and shape needed to allocate an
// Array from scratch.
type Profile struct {
	WKT       string
	Transform rfutil.GeoTransform
	Nodata    float64
	Width     int
	Height    int
	Count     int
}

// FromProfile allocates a new Array filled with profile.Nodata.
func FromProfile(profile Profile) *Array {
	n := profile.Count * profile.Height * profile.Width
	data := make([]float32, n)
	nd := float32(profile.Nodata)
	for i := range data {
		data[i] = nd
	}
	return &Array{
		data: data, count: profile.Count, height: profile.Height, width: profile.Width,
		wkt: profile.WKT, transform: profile.Transform, nodata: profile.Nodata,
	}
}

// Data returns the underlying band-major buffer. Mutating it mutates a.
func (a *Array) Data() []float32 { return a.data }

// Count is the number of bands.
func (a *Array) Count() int { return a.count }

// Height is the number of rows.
func (a *Array) Height() int { return a.height }

// Width is the number of columns.
func (a *Array) Width() int { return a.width }

// WKT is the array's spatial reference, as well-known text.
func (a *Array) WKT() string { return a.wkt }

// Transform is the array's affine pixel-to-world transform.
func (a *Array) Transform() rfutil.GeoTransform { return a.transform }

// Nodata is the array's current nodata value.
func (a *Array) Nodata() float64 { return a.nodata }

// Band returns a view of band index bi (0-based) as a Height*Width
// row-major slice sharing storage with a.
func (a *Array) Band(bi int) []float32 {
	n := a.height * a.width
	return a.data[bi*n : (bi+1)*n]
}

// Res returns the absolute (resX, resY) pixel size.
func (a *Array) Res() (float64, float64) {
	return math.Abs(a.transform[1]), math.Abs(a.transform[5])
}

// Bounds returns the (minX, minY, maxX, maxY) world bounding box of a.
func (a *Array) Bounds() (minX, minY, maxX, maxY float64) {
	w := rfutil.Window{Row0: 0, Col0: 0, Height: a.height, Width: a.width}
	return w.Bounds(a.transform)
}

// nanEquals reports NaN-aware equality, matching the invariant that
// nodata=NaN cells compare equal to each other.
func nanEquals(x, y float64) bool {
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y
}

// Mask returns the 2D valid-pixel mask: the logical AND, over all bands, of
// (pixel != nodata).
func (a *Array) Mask() []bool {
	n := a.height * a.width
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	nodata := a.nodata
	for b := 0; b < a.count; b++ {
		band := a.Band(b)
		for i, v := range band {
			if mask[i] && nanEquals(float64(v), nodata) {
				mask[i] = false
			}
		}
	}
	return mask
}

// SetMask writes a.Nodata() into every band at every pixel where mask is
// false, leaving pixels where mask is true untouched.
func (a *Array) SetMask(mask []bool) {
	nodata := float32(a.nodata)
	for b := 0; b < a.count; b++ {
		band := a.Band(b)
		for i, ok := range mask {
			if !ok {
				band[i] = nodata
			}
		}
	}
}

// SetNodata rewrites a.nodata, first rewriting every currently-invalid pixel
// to the new value so invariant (i) (pixel==nodata iff invalid) is
// preserved.
func (a *Array) SetNodata(value float64) {
	if nanEquals(value, a.nodata) {
		a.nodata = value
		return
	}
	mask := a.Mask()
	newVal := float32(value)
	for b := 0; b < a.count; b++ {
		band := a.Band(b)
		for i, ok := range mask {
			if !ok {
				band[i] = newVal
			}
		}
	}
	a.nodata = value
}

// CropRel returns a new Array covering the rowOff,colOff,h,w sub-rectangle
// of a's own pixel grid (0-based, relative to a itself, not world bounds).
// It returns a *radfuse.Error{Kind: ErrShape} if the rectangle doesn't fit
// inside a.
func (a *Array) CropRel(rowOff, colOff, h, w int) (*Array, error) {
	if rowOff < 0 || colOff < 0 || h < 0 || w < 0 || rowOff+h > a.height || colOff+w > a.width {
		return nil, radfuse.NewError(radfuse.ErrShape, "raster.CropRel", nil)
	}
	rel := rfutil.Window{Row0: rowOff, Col0: colOff, Height: h, Width: w}
	out := FromProfile(Profile{
		WKT: a.wkt, Transform: rfutil.WindowTransform(rel, a.transform),
		Nodata: a.nodata, Width: w, Height: h, Count: a.count,
	})
	for b := 0; b < a.count; b++ {
		src := a.Band(b)
		dst := out.Band(b)
		for r := 0; r < h; r++ {
			srcRow := src[(rowOff+r)*a.width+colOff : (rowOff+r)*a.width+colOff+w]
			copy(dst[r*w:(r+1)*w], srcRow)
		}
	}
	return out, nil
}

// Clone returns a copy of a. If deep is false, the returned Array shares the
// same underlying buffer (useful for read-only snapshots of metadata).
func (a *Array) Clone(deep bool) *Array {
	data := a.data
	if deep {
		data = make([]float32, len(a.data))
		copy(data, a.data)
	}
	return &Array{
		data: data, count: a.count, height: a.height, width: a.width,
		wkt: a.wkt, transform: a.transform, nodata: a.nodata,
	}
}
