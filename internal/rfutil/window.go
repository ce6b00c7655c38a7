// Package rfutil implements the small, leaf-level utilities component
// (kernel-shape validation, window expansion/rounding, non-alpha band
// enumeration, coverage checks and filename conventions) that the other
// radfuse packages build on.
package rfutil

import "math"

// GeoTransform is GDAL's 6-element affine transform: pixel (col, row) maps
// to world (X, Y) as
//
//	X = t[0] + col*t[1] + row*t[2]
//	Y = t[3] + col*t[4] + row*t[5]
type GeoTransform [6]float64

// Window is an integer pixel window: rows/cols [Row0, Row0+Height) x
// [Col0, Col0+Width).
type Window struct {
	Row0, Col0    int
	Height, Width int
}

// FloatWindow is a Window with fractional extents, the intermediate form
// produced by projecting world bounds through an inverse GeoTransform before
// it is snapped to the integer pixel grid.
type FloatWindow struct {
	Row0, Col0    float64
	Height, Width float64
}

// Bounds returns the world-coordinate bounding box (minX, minY, maxX, maxY)
// of w under t.
func (w Window) Bounds(t GeoTransform) (minX, minY, maxX, maxY float64) {
	corners := [4][2]float64{
		{float64(w.Col0), float64(w.Row0)},
		{float64(w.Col0 + w.Width), float64(w.Row0)},
		{float64(w.Col0), float64(w.Row0 + w.Height)},
		{float64(w.Col0 + w.Width), float64(w.Row0 + w.Height)},
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x := t[0] + c[0]*t[1] + c[1]*t[2]
		y := t[3] + c[0]*t[4] + c[1]*t[5]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return
}

// WindowTransform returns the GeoTransform whose origin is offset to the
// upper-left corner of w within t.
func WindowTransform(w Window, t GeoTransform) GeoTransform {
	out := t
	out[0] = t[0] + float64(w.Col0)*t[1] + float64(w.Row0)*t[2]
	out[3] = t[3] + float64(w.Col0)*t[4] + float64(w.Row0)*t[5]
	return out
}

// invert returns the inverse affine mapping world (X,Y) to pixel (col,row):
// col = a*(X-t[0]) + b*(Y-t[3]); row = c*(X-t[0]) + d*(Y-t[3]).
func invert(t GeoTransform) (a, b, c, d float64, ok bool) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, 0, 0, false
	}
	a = t[5] / det
	b = -t[2] / det
	c = -t[4] / det
	d = t[1] / det
	return a, b, c, d, true
}

// FromBounds computes the fractional pixel Window corresponding to the
// world-coordinate bounding box (minX, minY, maxX, maxY) under t.
func FromBounds(minX, minY, maxX, maxY float64, t GeoTransform) (FloatWindow, bool) {
	a, b, c, d, ok := invert(t)
	if !ok {
		return FloatWindow{}, false
	}
	toPixel := func(x, y float64) (col, row float64) {
		dx, dy := x-t[0], y-t[3]
		return a*dx + b*dy, c*dx + d*dy
	}
	corners := [4][2]float64{
		{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY},
	}
	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		col, row := toPixel(c[0], c[1])
		minCol, maxCol = math.Min(minCol, col), math.Max(maxCol, col)
		minRow, maxRow = math.Min(minRow, row), math.Max(maxRow, row)
	}
	return FloatWindow{Row0: minRow, Col0: minCol, Height: maxRow - minRow, Width: maxCol - minCol}, true
}

// ExpandToGrid expands a fractional window outward (by expandRows,
// expandCols pixels on every side) to the smallest integer-aligned window
// that contains it, guaranteeing a later resample back across grids will
// not truncate valid data.
func ExpandToGrid(w FloatWindow, expandRows, expandCols int) Window {
	colOff, colFrac := floorDivMod(w.Col0 - float64(expandCols))
	rowOff, rowFrac := floorDivMod(w.Row0 - float64(expandRows))
	width := math.Ceil(w.Width + 2*float64(expandCols) + colFrac)
	height := math.Ceil(w.Height + 2*float64(expandRows) + rowFrac)
	return Window{
		Row0: int(rowOff), Col0: int(colOff),
		Height: int(height), Width: int(width),
	}
}

// RoundToGrid rounds a fractional window's extents to the nearest integer
// pixel grid so that consecutive output windows tile without gaps.
func RoundToGrid(w FloatWindow) Window {
	colStart := math.Round(w.Col0)
	colStop := math.Round(w.Col0 + w.Width)
	rowStart := math.Round(w.Row0)
	rowStop := math.Round(w.Row0 + w.Height)
	return Window{
		Row0: int(rowStart), Col0: int(colStart),
		Height: int(rowStop - rowStart), Width: int(colStop - colStart),
	}
}

// floorDivMod returns (floor(x), x-floor(x)), i.e. Python's divmod(x, 1).
func floorDivMod(x float64) (q, r float64) {
	q = math.Floor(x)
	r = x - q
	return
}

// Intersect clips w to the bounds of grid (both windows interpreted in the
// same pixel grid).
func (w Window) Intersect(grid Window) Window {
	r0 := maxInt(w.Row0, grid.Row0)
	c0 := maxInt(w.Col0, grid.Col0)
	r1 := minInt(w.Row0+w.Height, grid.Row0+grid.Height)
	c1 := minInt(w.Col0+w.Width, grid.Col0+grid.Width)
	if r1 < r0 {
		r1 = r0
	}
	if c1 < c0 {
		c1 = c0
	}
	return Window{Row0: r0, Col0: c0, Height: r1 - r0, Width: c1 - c0}
}

// TouchesBoundary reports whether w touches any edge of grid.
func (w Window) TouchesBoundary(grid Window) bool {
	return w.Row0 <= grid.Row0 || w.Col0 <= grid.Col0 ||
		w.Row0+w.Height >= grid.Row0+grid.Height || w.Col0+w.Width >= grid.Col0+grid.Width
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
