package rfutil

import "github.com/airbusgeo/godal"

// NonAlphaBands returns the 1-based indices of every band in ds whose color
// interpretation is not CIAlpha, in band order.
func NonAlphaBands(ds *godal.Dataset) []int {
	bands := ds.Bands()
	idx := make([]int, 0, len(bands))
	for i, b := range bands {
		if b.ColorInterp() != godal.CIAlpha {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// IsMasked reports whether any of the given 1-based band indices carries a
// per-dataset mask or alpha-derived mask, as opposed to a plain nodata
// value.
func IsMasked(ds *godal.Dataset, indexes []int) bool {
	bands := ds.Bands()
	const gmfPerDataset = 0x02
	const gmfAlpha = 0x04
	for _, bi := range indexes {
		if bi < 1 || bi > len(bands) {
			continue
		}
		flags := bands[bi-1].MaskFlags()
		if flags&(gmfPerDataset|gmfAlpha) != 0 {
			return true
		}
	}
	return false
}
