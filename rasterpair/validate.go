package rasterpair

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"go.uber.org/zap"
)

// validateImage checks a single dataset is readable and warns if it carries
// neither a nodata value nor a mask/alpha band.
func validateImage(ds *godal.Dataset, name string, logger *zap.Logger) error {
	bands := ds.Bands()
	if len(bands) == 0 {
		return radfuse.NewError(radfuse.ErrUnsupportedImage, "rasterpair.validateImage",
			fmt.Errorf("%s has no bands", name))
	}
	probe := make([]float32, 1)
	if err := bands[0].Read(0, 0, probe, 1, 1); err != nil {
		return radfuse.NewError(radfuse.ErrUnsupportedImage, "rasterpair.validateImage",
			fmt.Errorf("could not read %s: %w", name, err))
	}

	isMasked := rfutil.IsMasked(ds, []int{1})
	if _, ok := bands[0].NoData(); !ok && !isMasked {
		logger.Warn("image has no mask or nodata value; invalid pixels should be masked before processing",
			zap.String("image", name))
	}
	return nil
}

// datasetBoundsIn returns ds's bounding box reprojected into ref's spatial
// reference (or ds's own, if ref is nil), so coverage can be compared in a
// common CRS even when source and reference differ.
func datasetBoundsIn(ds *godal.Dataset, ref *godal.Dataset) (rfutil.Bounds, error) {
	var (
		b   [4]float64
		err error
	)
	if ref != nil {
		b, err = ds.Bounds(ref.SpatialRef())
	} else {
		b, err = ds.Bounds()
	}
	if err != nil {
		return rfutil.Bounds{}, radfuse.NewError(radfuse.ErrIO, "rasterpair.datasetBounds", err)
	}
	return rfutil.Bounds{b[0], b[1], b[2], b[3]}, nil
}

// validateImagePair validates src and ref together. The two per-image
// checks are both run and their failures combined via radfuse.Combine; the
// pair-level coverage and band-count checks that follow stop at the first
// failure.
func validateImagePair(srcDS, refDS *godal.Dataset, srcName, refName string, logger *zap.Logger) ([]int, []int, error) {
	var errs error
	if err := validateImage(srcDS, srcName, logger); err != nil {
		errs = radfuse.Combine(errs, err)
	}
	if err := validateImage(refDS, refName, logger); err != nil {
		errs = radfuse.Combine(errs, err)
	}
	if errs != nil {
		return nil, nil, errs
	}

	srcBounds, err := datasetBoundsIn(srcDS, nil)
	if err != nil {
		return nil, nil, err
	}
	refBounds, err := datasetBoundsIn(refDS, srcDS)
	if err != nil {
		return nil, nil, err
	}
	if !rfutil.Covers(refBounds, srcBounds) {
		return nil, nil, radfuse.NewError(radfuse.ErrContent, "rasterpair.validateImagePair",
			fmt.Errorf("reference extent does not cover source image"))
	}

	srcBands := rfutil.NonAlphaBands(srcDS)
	refBands := rfutil.NonAlphaBands(refDS)
	if len(srcBands) > len(refBands) {
		return nil, nil, radfuse.NewError(radfuse.ErrContent, "rasterpair.validateImagePair",
			fmt.Errorf("reference (%s) has fewer non-alpha bands than source (%s)", refName, srcName))
	}
	if len(srcBands) != len(refBands) {
		logger.Warn("source/reference non-alpha band counts differ; truncating reference",
			zap.Int("src_bands", len(srcBands)), zap.Int("ref_bands", len(refBands)))
		refBands = refBands[:len(srcBands)]
	}
	if srcDS.Projection() != refDS.Projection() {
		logger.Warn("source and reference are not in the same CRS; a warped view will be used", zap.String("src", srcName), zap.String("ref", refName))
	}
	return srcBands, refBands, nil
}
