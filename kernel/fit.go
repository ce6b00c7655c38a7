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
	"fmt"
	"math"
	"sort"

	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/geofuse/radfuse/raster"
	"go.uber.org/zap"
)

// Model fits one of the three radiometric correction methods over a sliding
// kernel using separable box-filter moment accumulation.
type Model struct {
	Method      radfuse.Method
	KernelShape [2]int
	FindR2      bool
	Config      ModelConfig
	logger      *zap.Logger
}

// New validates kernelShape and config and returns a ready-to-use Model.
// findR2 widens a gain ParamArray to three bands (gain, offset, R²); the
// offset and R² bands of that ParamArray are not computed and stay nodata.
// It has no effect on gain_blk_offset (always two bands) or gain_offset
// (always three bands, R² computed).
func New(method radfuse.Method, kernelShape [2]int, findR2 bool, config ModelConfig, logger *zap.Logger) (*Model, error) {
	if err := rfutil.ValidateKernelShape(kernelShape, method == radfuse.MethodGainOffset); err != nil {
		return nil, radfuse.NewError(radfuse.ErrConfig, "kernel.New", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{Method: method, KernelShape: kernelShape, FindR2: findR2, Config: config, logger: logger}, nil
}

func (m *Model) paramCount() int {
	if m.Method == radfuse.MethodGain && m.FindR2 {
		return 3
	}
	return ParamCount(m.Method)
}

// Fit fits the model over ref/src (on the same grid), returning a ParamArray
// on that grid with 1, 2 or 3 bands (gain[, offset[, R²]]) according to
// method. Only pixels with both source and reference valid (mask=true)
// contribute to any kernel sum.
func (m *Model) Fit(ref, src *raster.Array) (*raster.Array, error) {
	h, w := ref.Height(), ref.Width()
	if src.Height() != h || src.Width() != w {
		return nil, radfuse.NewError(radfuse.ErrShape, "kernel.Fit",
			fmt.Errorf("ref (%dx%d) and src (%dx%d) must share a grid", h, w, src.Height(), src.Width()))
	}
	kh, kw := m.KernelShape[0], m.KernelShape[1]

	sBand := src.Band(0)
	rBand := ref.Band(0)
	n := h * w
	s := make([]float64, n)
	r := make([]float64, n)
	valid := make([]bool, n)
	srcNodata, refNodata := src.Nodata(), ref.Nodata()
	for i := 0; i < n; i++ {
		sv, rv := float64(sBand[i]), float64(rBand[i])
		if nanEquals64(sv, srcNodata) || nanEquals64(rv, refNodata) {
			continue
		}
		valid[i] = true
		s[i] = sv
		r[i] = rv
	}

	mo := computeMoments(s, r, valid, h, w, kh, kw)
	count := m.paramCount()
	param := raster.FromProfile(raster.Profile{
		WKT: ref.WKT(), Transform: ref.Transform(), Nodata: math.NaN(),
		Width: w, Height: h, Count: count,
	})

	switch m.Method {
	case radfuse.MethodGain:
		m.fitGain(param, mo)
	case radfuse.MethodGainBlockOffset:
		m.fitGainBlockOffset(param, mo, s, r, valid)
	case radfuse.MethodGainOffset:
		m.fitGainOffset(param, mo)
	}
	return param, nil
}

func (m *Model) fitGain(param *raster.Array, mo moments) {
	gain := param.Band(0)
	n := len(gain)
	for i := 0; i < n; i++ {
		if mo.n[i] < 1 || mo.sumS[i] <= 0 {
			continue
		}
		gain[i] = float32(mo.sumR[i] / mo.sumS[i])
	}
}

func (m *Model) fitGainBlockOffset(param *raster.Array, mo moments, s, r []float64, valid []bool) {
	gain := param.Band(0)
	offset := param.Band(1)
	n := len(gain)
	for i := 0; i < n; i++ {
		if mo.n[i] < 1 || mo.sumS[i] <= 0 {
			continue
		}
		gain[i] = float32(mo.sumR[i] / mo.sumS[i])
	}

	var sValid, rValid []float64
	var sSum, rSum float64
	for i := 0; i < n; i++ {
		if !valid[i] {
			continue
		}
		sValid = append(sValid, s[i])
		rValid = append(rValid, r[i])
		sSum += s[i]
		rSum += r[i]
	}
	if len(sValid) == 0 || sSum <= 0 {
		return
	}
	blockGain := rSum / sSum
	oConst := percentile1(rValid) - blockGain*percentile1(sValid)
	for i := 0; i < n; i++ {
		if !isNaN32(gain[i]) {
			offset[i] = float32(oConst)
		}
	}
}

func (m *Model) fitGainOffset(param *raster.Array, mo moments) {
	gain := param.Band(0)
	offset := param.Band(1)
	r2 := param.Band(2)
	n := len(gain)
	flagged := make([]bool, n)

	for i := 0; i < n; i++ {
		if mo.n[i] < 1 {
			continue
		}
		num := mo.n[i]*mo.sumSR[i] - mo.sumS[i]*mo.sumR[i]
		denS := mo.n[i]*mo.sumSS[i] - mo.sumS[i]*mo.sumS[i]
		if denS <= 0 {
			continue
		}
		g := num / denS
		o := (mo.sumR[i] - g*mo.sumS[i]) / mo.n[i]

		ssRes := mo.n[i] * (g*g*mo.sumSS[i] + o*o*mo.n[i] + mo.sumRR[i] +
			2*g*o*mo.sumS[i] - 2*g*mo.sumSR[i] - 2*o*mo.sumR[i])
		ssTot := mo.n[i]*mo.sumRR[i] - mo.sumR[i]*mo.sumR[i]

		// ssTot <= 0 means the reference window is constant, so R² is
		// undefined; rsq is left at its zero value, which only flags this
		// pixel for inpainting if the caller has also raised
		// r2_inpaint_thresh above its zero default, or if g < 0 below.
		var rsq float64
		if ssTot > 0 {
			rsq = 1 - ssRes/ssTot
		}

		gain[i] = float32(g)
		offset[i] = float32(o)
		r2[i] = float32(rsq)

		if rsq < m.Config.R2InpaintThresh || g < 0 {
			flagged[i] = true
		}
	}

	inpaintOffset(offset, flagged, param.Height(), param.Width())

	for i := 0; i < n; i++ {
		if !flagged[i] || isNaN32(gain[i]) {
			continue
		}
		if mo.sumS[i] == 0 {
			continue
		}
		gain[i] = float32((mo.sumR[i] - mo.n[i]*float64(offset[i])) / mo.sumS[i])
	}
}

func nanEquals64(x, y float64) bool {
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y
}

// percentile1 returns the 1st percentile of vals (linear interpolation
// between order statistics, matching the common "dark object" estimator:
// robust against single-pixel noise, unlike a strict minimum).
func percentile1(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := 0.01 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
