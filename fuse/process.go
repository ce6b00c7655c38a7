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

package fuse

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/airbusgeo/cogger"
	"github.com/airbusgeo/godal"
	"github.com/alitto/pond"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/geofuse/radfuse/kernel"
	"github.com/geofuse/radfuse/rasterpair"
	"golang.org/x/sync/errgroup"
)

// Open opens the source/reference pair, creates the output (and, if
// configured, parameter) file, and writes their metadata. It must be
// called before Process.
func (f *RasterFuse) Open() error {
	if err := f.pair.Open(); err != nil {
		return err
	}
	if err := f.createOutput(); err != nil {
		f.pair.Close()
		return err
	}
	if f.homo.ParamImage {
		if err := f.createParam(); err != nil {
			f.closeDatasets()
			f.pair.Close()
			return err
		}
	}
	return nil
}

func (f *RasterFuse) createOutput() error {
	srcDS := f.pair.SrcDataset()
	st := srcDS.Structure()
	nBands := len(f.pair.SrcBands())

	createPath := f.outPath
	if f.outProfile.Driver == godal.GTiff {
		createPath = f.outPath + ".cogtmp.tif"
	}

	ds, err := godal.Create(f.outProfile.Driver, createPath, nBands, f.outProfile.DType, st.SizeX, st.SizeY,
		godal.CreationOption(f.outProfile.creationOptions()...))
	if err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.createOutput", err)
	}
	if err := f.stampGeoreference(ds, srcDS, f.outProfile.Nodata); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	if err := f.writeRunMetadata(ds); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	refDesc := bandDescriptions(f.pair.RefDataset())
	if err := copyBandTags(ds, f.pair.RefDataset(), func(i int) string {
		if i < len(refDesc) {
			return refDesc[i]
		}
		return ""
	}); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	f.outDS = ds
	if createPath != f.outPath {
		f.outTmpPath = createPath
	}
	return nil
}

func (f *RasterFuse) createParam() error {
	var baseDS *godal.Dataset
	if f.pair.ProcCRS() == radfuse.ProcRef {
		baseDS = f.pair.RefDataset()
	} else {
		baseDS = f.pair.SrcDataset()
	}
	st := baseDS.Structure()
	n := len(f.pair.SrcBands()) * 3

	createPath := f.paramPath
	if f.outProfile.Driver == godal.GTiff {
		createPath = f.paramPath + ".cogtmp.tif"
	}

	ds, err := godal.Create(f.outProfile.Driver, createPath, n, godal.Float32, st.SizeX, st.SizeY,
		godal.CreationOption(f.outProfile.creationOptions()...))
	if err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.createParam", err)
	}
	if err := f.stampGeoreference(ds, baseDS, math.NaN()); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	if err := f.writeRunMetadata(ds); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	refDesc := bandDescriptions(f.pair.RefDataset())
	planeSuffix := []string{"_GAIN", "_OFFSET", "_R2"}
	nSrc := len(f.pair.SrcBands())
	if err := copyBandTags(ds, f.pair.RefDataset(), func(i int) string {
		b := i % nSrc
		p := i / nSrc
		descr := fmt.Sprintf("band_%d", b+1)
		if b < len(refDesc) && refDesc[b] != "" {
			descr = refDesc[b]
		}
		return descr + planeSuffix[p]
	}); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	if err := fillUnusedPlanes(ds, usedPlanes(f.method), nSrc); err != nil {
		ds.Close()
		os.Remove(createPath)
		return err
	}
	f.paramDS = ds
	if createPath != f.paramPath {
		f.paramTmpPath = createPath
	}
	return nil
}

// usedPlanes returns how many of the gain/offset/R² planes a parameter
// file run for method actually writes: gain_offset writes all three, gain
// (widened by findR2) writes three planes whose offset and R² stay nodata,
// and gain_blk_offset writes two, leaving its third plane unused.
func usedPlanes(method radfuse.Method) int {
	if method == radfuse.MethodGainBlockOffset {
		return 2
	}
	return 3
}

// fillUnusedPlanes writes NaN across the full extent of every band beyond
// used*nSrc, so parameter planes a method never produces still read back
// as nodata rather than whatever the driver's default fill is.
func fillUnusedPlanes(ds *godal.Dataset, used, nSrc int) error {
	st := ds.Structure()
	bands := ds.Bands()
	buf := make([]float32, st.SizeX*st.SizeY)
	for i := range buf {
		buf[i] = float32(math.NaN())
	}
	for i := used * nSrc; i < len(bands); i++ {
		if err := bands[i].Write(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			return radfuse.NewError(radfuse.ErrIO, "fuse.fillUnusedPlanes", err)
		}
	}
	return nil
}

func (f *RasterFuse) stampGeoreference(ds, templateDS *godal.Dataset, nodata float64) error {
	gt, err := templateDS.GeoTransform()
	if err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.stampGeoreference", err)
	}
	if err := ds.SetGeoTransform(gt); err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.stampGeoreference", err)
	}
	if wkt := templateDS.Projection(); wkt != "" {
		if err := ds.SetProjection(wkt); err != nil {
			return radfuse.NewError(radfuse.ErrIO, "fuse.stampGeoreference", err)
		}
	}
	for _, b := range ds.Bands() {
		if err := b.SetNoData(nodata); err != nil {
			return radfuse.NewError(radfuse.ErrIO, "fuse.stampGeoreference", err)
		}
	}
	return nil
}

// writeRunMetadata writes the tags describing the whole run: source/
// reference files, proc-CRS, method, kernel shape, and the homo/model
// configuration.
func (f *RasterFuse) writeRunMetadata(ds *godal.Dataset) error {
	tags := map[string]string{
		"FUSE_SRC_FILE":                f.pair.SrcPath(),
		"FUSE_REF_FILE":                f.pair.RefPath(),
		"FUSE_PROC_CRS":                f.pair.ProcCRS().String(),
		"FUSE_METHOD":                  f.method.String(),
		"FUSE_KERNEL_SHAPE":            fmt.Sprintf("(%d, %d)", f.kernelShape[0], f.kernelShape[1]),
		"FUSE_MAX_BLOCK_MEM":           strconv.FormatFloat(f.homo.MaxBlockMemMB, 'g', -1, 64),
		"FUSE_THREADS":                 strconv.Itoa(f.homo.Threads),
		"FUSE_MODEL_UPSAMPLING":        f.modelConfig.Upsampling.String(),
		"FUSE_MODEL_DOWNSAMPLING":      f.modelConfig.Downsampling.String(),
		"FUSE_MODEL_R2_INPAINT_THRESH": strconv.FormatFloat(f.modelConfig.R2InpaintThresh, 'g', -1, 64),
		"FUSE_MODEL_MASK_PARTIAL":      strconv.FormatBool(f.modelConfig.MaskPartial),
	}
	for k, v := range tags {
		if err := ds.SetMetadata(k, v); err != nil {
			return radfuse.NewError(radfuse.ErrIO, "fuse.writeRunMetadata", err)
		}
	}
	return nil
}

// selectedRefTags are the reference band tags copied verbatim onto the
// output (and parameter) bands.
var selectedRefTags = []string{"ABBREV", "ID", "NAME"}

func bandDescriptions(ds *godal.Dataset) []string {
	bands := ds.Bands()
	out := make([]string, len(bands))
	for i, b := range bands {
		out[i] = b.Description()
	}
	return out
}

// copyBandTags writes a per-band description (via descrFor) to each of ds's
// bands and copies selectedRefTags from the matching reference band, where
// "matching" is i modulo the reference's own band count.
func copyBandTags(ds *godal.Dataset, refDS *godal.Dataset, descrFor func(i int) string) error {
	dstBands := ds.Bands()
	refBands := refDS.Bands()
	if len(refBands) == 0 {
		return nil
	}
	for i, b := range dstBands {
		if descr := descrFor(i); descr != "" {
			if err := b.SetDescription(descr); err != nil {
				return radfuse.NewError(radfuse.ErrIO, "fuse.copyBandTags", err)
			}
		}
		refBand := refBands[i%len(refBands)]
		for _, tag := range selectedRefTags {
			if v := refBand.Metadata(tag); v != "" {
				if err := b.SetMetadata(tag, v); err != nil {
					return radfuse.NewError(radfuse.ErrIO, "fuse.copyBandTags", err)
				}
			}
		}
	}
	return nil
}

// Process pulls every block pair from the underlying reader, fits and
// applies the correction model to each, and writes the corrected (and, if
// configured, parameter) output. threads=1 runs sequentially on the
// caller's goroutine; otherwise blocks are submitted to a fixed-size
// worker pool. On the first block failure, no further blocks are
// submitted and that error is returned once all in-flight blocks drain.
func (f *RasterFuse) Process(ctx context.Context) error {
	threads, err := rfutil.ResolveThreads(f.homo.Threads)
	if err != nil {
		return radfuse.NewError(radfuse.ErrConfig, "fuse.Process", err)
	}

	overlap, err := f.overlap()
	if err != nil {
		return err
	}
	blocks, err := f.pair.BlockPairs(overlap, f.homo.MaxBlockMemMB)
	if err != nil {
		return err
	}

	var firstErr error
	var errOnce sync.Once
	recordErr := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}
	var failed atomic.Bool

	process := func(bp rasterpair.BlockPair) {
		if failed.Load() {
			return
		}
		if err := f.processBlock(bp); err != nil {
			failed.Store(true)
			recordErr(err)
		}
	}

	if f.homo.Threads == 1 {
		for _, bp := range blocks {
			process(bp)
			if failed.Load() {
				break
			}
		}
	} else {
		pool := pond.New(threads, len(blocks))
		for _, bp := range blocks {
			if failed.Load() {
				break
			}
			block := bp
			pool.Submit(func() { process(block) })
		}
		pool.StopAndWait()
	}
	if firstErr != nil {
		return firstErr
	}

	if err := f.buildOverviews(ctx); err != nil {
		return err
	}
	return f.finalizeOutputs()
}

// overlap returns the proc-CRS halo the configured kernel requires, scaled
// for SrcSpaceModel's resolution-adjusted effective kernel when proc_crs
// is src.
func (f *RasterFuse) overlap() ([2]int, error) {
	if f.pair.ProcCRS() == radfuse.ProcRef {
		return rfutil.OverlapForKernel(f.kernelShape), nil
	}
	srcGT, err := f.pair.SrcDataset().GeoTransform()
	if err != nil {
		return [2]int{}, radfuse.NewError(radfuse.ErrIO, "fuse.overlap", err)
	}
	refGT, err := f.pair.RefDataset().GeoTransform()
	if err != nil {
		return [2]int{}, radfuse.NewError(radfuse.ErrIO, "fuse.overlap", err)
	}
	shape := kernel.EffectiveKernelShape(f.kernelShape, math.Abs(refGT[1]), math.Abs(refGT[5]), math.Abs(srcGT[1]), math.Abs(srcGT[5]))
	return rfutil.OverlapForKernel(shape), nil
}

func (f *RasterFuse) processBlock(bp rasterpair.BlockPair) error {
	src, ref, err := f.pair.Read(bp)
	if err != nil {
		return err
	}
	out, param, err := f.model.FitApply(src, ref)
	if err != nil {
		return err
	}

	srcRowOff := bp.SrcOut.Row0 - bp.SrcIn.Row0
	srcColOff := bp.SrcOut.Col0 - bp.SrcIn.Col0
	outCrop, err := out.CropRel(srcRowOff, srcColOff, bp.SrcOut.Height, bp.SrcOut.Width)
	if err != nil {
		return err
	}
	f.writeLock.Lock()
	err = outCrop.ToDataset(f.outDS, []int{bp.BandIndex + 1}, bp.SrcOut)
	f.writeLock.Unlock()
	if err != nil {
		return err
	}

	if !f.homo.ParamImage {
		return nil
	}

	var paramIn, paramOut rfutil.Window
	if f.pair.ProcCRS() == radfuse.ProcRef {
		paramIn, paramOut = bp.RefIn, bp.RefOut
	} else {
		paramIn, paramOut = bp.SrcIn, bp.SrcOut
	}
	paramRowOff := paramOut.Row0 - paramIn.Row0
	paramColOff := paramOut.Col0 - paramIn.Col0
	paramCrop, err := param.CropRel(paramRowOff, paramColOff, paramOut.Height, paramOut.Width)
	if err != nil {
		return err
	}

	nSrc := len(f.pair.SrcBands())
	indexes := make([]int, paramCrop.Count())
	for p := range indexes {
		indexes[p] = p*nSrc + bp.BandIndex + 1
	}
	f.paramLock.Lock()
	err = paramCrop.ToDataset(f.paramDS, indexes, paramOut)
	f.paramLock.Unlock()
	return err
}

// buildOverviews builds average-resampled internal overviews on the output
// (and parameter) file: floor(log2(min(H,W))) levels at successive powers
// of two, capped at 8 levels and a minimum level size of 256 pixels.
func (f *RasterFuse) buildOverviews(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return buildOverviewsOn(f.outDS) })
	if f.paramDS != nil {
		g.Go(func() error { return buildOverviewsOn(f.paramDS) })
	}
	return g.Wait()
}

const (
	maxOverviewLevels = 8
	minOverviewSize   = 256
)

func buildOverviewsOn(ds *godal.Dataset) error {
	st := ds.Structure()
	minDim := st.SizeX
	if st.SizeY < minDim {
		minDim = st.SizeY
	}
	maxLevels := int(math.Log2(float64(minDim)))
	numLevels := maxLevels - int(math.Log2(float64(minOverviewSize)))
	if numLevels > maxOverviewLevels {
		numLevels = maxOverviewLevels
	}
	if numLevels < 1 {
		return nil
	}
	levels := make([]int, numLevels)
	for i := range levels {
		levels[i] = 1 << (i + 1)
	}
	if err := ds.BuildOverviews(godal.Resampling(godal.Average), godal.Levels(levels...)); err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.buildOverviews", err)
	}
	return nil
}

// finalizeOutputs closes the working datasets and, for the default GTiff
// driver, rewrites each from godal's working tiled+overview layout into a
// genuine Cloud-Optimized GeoTIFF via cogger.Rewrite. BuildOverviews alone
// leaves the full-resolution IFD first and the overview IFDs appended
// after it; cogger.Rewrite reorders that into the overview-first, single-
// ghost-IFD layout a COG reader expects to stream -- the same
// create-to-temp-then-cogger.Rewrite two-step the airbusgeo-godal cogify
// command uses.
func (f *RasterFuse) finalizeOutputs() error {
	if err := f.finalizeOne(f.outDS, f.outTmpPath, f.outPath); err != nil {
		return err
	}
	f.outDS = nil
	f.outTmpPath = ""
	if f.paramDS != nil {
		if err := f.finalizeOne(f.paramDS, f.paramTmpPath, f.paramPath); err != nil {
			return err
		}
		f.paramDS = nil
		f.paramTmpPath = ""
	}
	return nil
}

func (f *RasterFuse) finalizeOne(ds *godal.Dataset, tmpPath, finalPath string) error {
	if err := ds.Close(); err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.finalizeOutputs", err)
	}
	if tmpPath == "" {
		return nil
	}
	if err := cogRewrite(tmpPath, finalPath); err != nil {
		return err
	}
	os.Remove(tmpPath)
	return nil
}

func cogRewrite(tmpPath, finalPath string) error {
	src, err := os.Open(tmpPath)
	if err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.cogRewrite", err)
	}
	defer src.Close()

	dst, err := os.Create(finalPath)
	if err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.cogRewrite", err)
	}
	if err := cogger.Rewrite(dst, src); err != nil {
		dst.Close()
		return radfuse.NewError(radfuse.ErrIO, "fuse.cogRewrite", err)
	}
	if err := dst.Close(); err != nil {
		return radfuse.NewError(radfuse.ErrIO, "fuse.cogRewrite", err)
	}
	return nil
}

func (f *RasterFuse) closeDatasets() {
	if f.outDS != nil {
		f.outDS.Close()
		f.outDS = nil
	}
	if f.paramDS != nil {
		f.paramDS.Close()
		f.paramDS = nil
	}
}

// Close flushes and closes the output/parameter datasets and the
// underlying raster pair, discarding any working temp files a failed or
// never-run Process left behind, regardless of whether Process succeeded.
func (f *RasterFuse) Close() error {
	f.closeDatasets()
	if f.outTmpPath != "" {
		os.Remove(f.outTmpPath)
		f.outTmpPath = ""
	}
	if f.paramTmpPath != "" {
		os.Remove(f.paramTmpPath)
		f.paramTmpPath = ""
	}
	return f.pair.Close()
}
