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

package kernel

import (
	"math"

	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/geofuse/radfuse/raster"
	"go.uber.org/zap"
)

// RefSpaceModel fits and applies the correction model in the reference's
// (coarser, proc-CRS) grid: source is downsampled onto the reference grid
// to fit, and the fitted parameters are upsampled back onto the source grid
// to apply.
type RefSpaceModel struct {
	model *Model
}

// NewRefSpaceModel builds a RefSpaceModel, validating kernelShape and config
// as New does.
func NewRefSpaceModel(method radfuse.Method, kernelShape [2]int, findR2 bool, config ModelConfig, logger *zap.Logger) (*RefSpaceModel, error) {
	m, err := New(method, kernelShape, findR2, config, logger)
	if err != nil {
		return nil, err
	}
	return &RefSpaceModel{model: m}, nil
}

// FitApply downsamples src onto ref's grid, fits there, upsamples the
// fitted ParamArray back onto src's native grid, and applies it to src.
// Returns the corrected output (on src's grid) and the fitted ParamArray
// (on ref's grid, for diagnostics/writing a parameter file).
func (m *RefSpaceModel) FitApply(src, ref *raster.Array) (*raster.Array, *raster.Array, error) {
	srcOnRef, err := src.Reproject(raster.ReprojectOptions{
		WKT: ref.WKT(), Transform: transformPtr(ref.Transform()), Shape: shapePtr(ref.Height(), ref.Width()),
		Nodata: src.Nodata(), Resampling: m.model.Config.Downsampling,
	})
	if err != nil {
		return nil, nil, err
	}

	param, err := m.model.Fit(ref, srcOnRef)
	if err != nil {
		return nil, nil, err
	}

	applyParam, err := bandSubset(param, minInt(2, param.Count()))
	if err != nil {
		return nil, nil, err
	}
	paramOnSrc, err := applyParam.Reproject(raster.ReprojectOptions{
		WKT: src.WKT(), Transform: transformPtr(src.Transform()), Shape: shapePtr(src.Height(), src.Width()),
		Nodata: math.NaN(), Resampling: m.model.Config.Upsampling,
	})
	if err != nil {
		return nil, nil, err
	}

	out := applyLinear(src, paramOnSrc, m.model.Method)

	if m.model.Config.MaskPartial {
		srcRes, _ := src.Res()
		refRes, _ := ref.Res()
		ratio := 1
		if srcRes > 0 {
			ratio = int(math.Round(refRes / srcRes))
		}
		invalid := dilatedInvalidMask(param, ratio)
		invalidOnSrc := resampleBoolMask(invalid, param, src)
		maskOutputPartial(out, invalidOnSrc)
	}

	preserveSourceMask(out, src)
	return out, param, nil
}

// SrcSpaceModel fits and applies the correction model directly in the
// source's (finer, proc-CRS) grid: the reference is upsampled onto the
// source grid, fitting uses a kernel scaled by the resolution ratio so the
// ground footprint matches the configured kernel shape, and the fitted
// parameters apply directly without further resampling.
type SrcSpaceModel struct {
	model *Model
}

// NewSrcSpaceModel builds a SrcSpaceModel.
func NewSrcSpaceModel(method radfuse.Method, kernelShape [2]int, findR2 bool, config ModelConfig, logger *zap.Logger) (*SrcSpaceModel, error) {
	m, err := New(method, kernelShape, findR2, config, logger)
	if err != nil {
		return nil, err
	}
	return &SrcSpaceModel{model: m}, nil
}

// FitApply upsamples ref onto src's grid, fits at the resolution-scaled
// effective kernel shape, and applies directly on src's grid.
func (m *SrcSpaceModel) FitApply(src, ref *raster.Array) (*raster.Array, *raster.Array, error) {
	refOnSrc, err := ref.Reproject(raster.ReprojectOptions{
		WKT: src.WKT(), Transform: transformPtr(src.Transform()), Shape: shapePtr(src.Height(), src.Width()),
		Nodata: ref.Nodata(), Resampling: m.model.Config.Upsampling,
	})
	if err != nil {
		return nil, nil, err
	}

	srcResX, srcResY := src.Res()
	refResX, refResY := ref.Res()
	effShape := EffectiveKernelShape(m.model.KernelShape, refResX, refResY, srcResX, srcResY)

	scaled := &Model{
		Method: m.model.Method, KernelShape: effShape,
		FindR2: m.model.FindR2, Config: m.model.Config, logger: m.model.logger,
	}
	param, err := scaled.Fit(refOnSrc, src)
	if err != nil {
		return nil, nil, err
	}

	out := applyLinear(src, param, m.model.Method)
	preserveSourceMask(out, src)
	return out, param, nil
}

// EffectiveKernelShape returns the resolution-scaled kernel shape
// SrcSpaceModel fits at: kernelShape multiplied by round(ref_res/src_res)
// per axis, rounded up to stay odd. Exported so the block-halo computation
// driving a SrcSpaceModel run can match it without duplicating the rule.
func EffectiveKernelShape(kernelShape [2]int, refResX, refResY, srcResX, srcResY float64) [2]int {
	ratioH := resRatio(refResY, srcResY)
	ratioW := resRatio(refResX, srcResX)
	return [2]int{oddMultiple(kernelShape[0], ratioH), oddMultiple(kernelShape[1], ratioW)}
}

func resRatio(refRes, srcRes float64) int {
	if srcRes <= 0 {
		return 1
	}
	r := int(math.Round(refRes / srcRes))
	if r < 1 {
		return 1
	}
	return r
}

func oddMultiple(k, ratio int) int {
	v := k * ratio
	if v%2 == 0 {
		v++
	}
	return v
}

// applyLinear computes out = g*src + o (o omitted for MethodGain), leaving
// out nodata wherever src or the gain/offset params are invalid.
func applyLinear(src, param *raster.Array, method radfuse.Method) *raster.Array {
	out := raster.FromProfile(raster.Profile{
		WKT: src.WKT(), Transform: src.Transform(), Nodata: src.Nodata(),
		Width: src.Width(), Height: src.Height(), Count: 1,
	})
	srcBand := src.Band(0)
	outBand := out.Band(0)
	gain := param.Band(0)
	srcNodata := float32(src.Nodata())

	var offset []float32
	if method != radfuse.MethodGain && param.Count() > 1 {
		offset = param.Band(1)
	}

	for i := range srcBand {
		if nanEqualsF32(srcBand[i], srcNodata) || isNaN32(gain[i]) {
			continue
		}
		v := gain[i] * srcBand[i]
		if offset != nil {
			if isNaN32(offset[i]) {
				continue
			}
			v += offset[i]
		}
		outBand[i] = v
	}
	return out
}

func nanEqualsF32(a, b float32) bool {
	if isNaN32(a) && isNaN32(b) {
		return true
	}
	return a == b
}

// preserveSourceMask forces out to nodata wherever src is invalid, even if
// applyLinear already skipped it (defensive; out and src share a grid).
func preserveSourceMask(out, src *raster.Array) {
	srcBand := src.Band(0)
	outBand := out.Band(0)
	srcNodata := float32(src.Nodata())
	outNodata := float32(out.Nodata())
	for i := range srcBand {
		if nanEqualsF32(srcBand[i], srcNodata) {
			outBand[i] = outNodata
		}
	}
}

// dilatedInvalidMask returns, at param's own grid, true where the gain band
// is nodata (no coverage) after dilating by a radius-ratio square structuring
// element, so partially-covered src pixels near a proc-grid gap are also
// masked once resampled up.
func dilatedInvalidMask(param *raster.Array, radius int) []bool {
	h, w := param.Height(), param.Width()
	gain := param.Band(0)
	invalid := make([]bool, h*w)
	for i, g := range gain {
		invalid[i] = isNaN32(g)
	}
	if radius < 1 {
		return invalid
	}
	dilated := make([]bool, h*w)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r0, r1 := clamp(row-radius, 0, h-1), clamp(row+radius, 0, h-1)
			c0, c1 := clamp(col-radius, 0, w-1), clamp(col+radius, 0, w-1)
			hit := false
			for rr := r0; rr <= r1 && !hit; rr++ {
				for cc := c0; cc <= c1; cc++ {
					if invalid[rr*w+cc] {
						hit = true
						break
					}
				}
			}
			dilated[row*w+col] = hit
		}
	}
	return dilated
}

// resampleBoolMask resamples a proc-grid boolean mask (as 0/1 nearest
// resampling) onto target's grid.
func resampleBoolMask(mask []bool, param, target *raster.Array) []bool {
	data := make([]float32, len(mask))
	for i, v := range mask {
		if v {
			data[i] = 1
		}
	}
	src, err := raster.New(data, 1, param.Height(), param.Width(), param.WKT(), param.Transform(), -1)
	if err != nil {
		return make([]bool, target.Height()*target.Width())
	}
	resampled, err := src.Reproject(raster.ReprojectOptions{
		WKT: target.WKT(), Transform: transformPtr(target.Transform()), Shape: shapePtr(target.Height(), target.Width()),
		Nodata: -1, Resampling: radfuse.ResamplingNearest,
	})
	if err != nil {
		return make([]bool, target.Height()*target.Width())
	}
	out := make([]bool, target.Height()*target.Width())
	for i, v := range resampled.Band(0) {
		out[i] = v >= 0.5
	}
	return out
}

func maskOutputPartial(out *raster.Array, invalid []bool) {
	band := out.Band(0)
	nodata := float32(out.Nodata())
	for i, bad := range invalid {
		if bad {
			band[i] = nodata
		}
	}
}

func bandSubset(a *raster.Array, count int) (*raster.Array, error) {
	if count >= a.Count() {
		return a, nil
	}
	n := a.Height() * a.Width()
	data := make([]float32, count*n)
	for b := 0; b < count; b++ {
		copy(data[b*n:(b+1)*n], a.Band(b))
	}
	return raster.New(data, count, a.Height(), a.Width(), a.WKT(), a.Transform(), a.Nodata())
}

func transformPtr(t rfutil.GeoTransform) *rfutil.GeoTransform { return &t }

func shapePtr(h, w int) *[2]int {
	v := [2]int{h, w}
	return &v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
