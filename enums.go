package radfuse

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"
)

// Method is the radiometric correction model fitted in the sliding kernel.
type Method int

const (
	// MethodGain fits a single multiplicative gain per pixel.
	MethodGain Method = iota
	// MethodGainBlockOffset fits a per-pixel gain and a single scalar
	// block offset (dark-object subtraction), see kernel package doc.
	MethodGainBlockOffset
	// MethodGainOffset fits a per-pixel gain and offset by least squares,
	// with R²-driven offset inpainting.
	MethodGainOffset
)

func (m Method) String() string {
	switch m {
	case MethodGain:
		return "gain"
	case MethodGainBlockOffset:
		return "gain_blk_offset"
	case MethodGainOffset:
		return "gain_offset"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses the wire/config representation of a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "gain":
		return MethodGain, nil
	case "gain_blk_offset", "gain-blk-offset":
		return MethodGainBlockOffset, nil
	case "gain_offset", "gain-offset":
		return MethodGainOffset, nil
	default:
		return 0, NewError(ErrConfig, "ParseMethod", fmt.Errorf("unknown method %q", s))
	}
}

// ProcCRS selects which of the source/reference grids the kernel model is
// fitted in.
type ProcCRS int

const (
	// ProcAuto resolves to whichever of source/reference has the lower
	// spatial resolution (larger pixel area).
	ProcAuto ProcCRS = iota
	ProcSrc
	ProcRef
)

func (p ProcCRS) String() string {
	switch p {
	case ProcAuto:
		return "auto"
	case ProcSrc:
		return "src"
	case ProcRef:
		return "ref"
	default:
		return fmt.Sprintf("ProcCRS(%d)", int(p))
	}
}

// ParseProcCRS parses the wire/config representation of a ProcCRS.
func ParseProcCRS(s string) (ProcCRS, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ProcAuto, nil
	case "src":
		return ProcSrc, nil
	case "ref":
		return ProcRef, nil
	default:
		return 0, NewError(ErrConfig, "ParseProcCRS", fmt.Errorf("unknown proc_crs %q", s))
	}
}

// Resampling is the resampling algorithm used when warping between the
// source and reference grids. It mirrors godal.ResamplingAlg so that
// configuration structs stay independent of the raster I/O library's own
// type while remaining a thin, zero-cost wrapper around it.
type Resampling int

const (
	ResamplingNearest Resampling = iota
	ResamplingBilinear
	ResamplingCubic
	ResamplingCubicSpline
	ResamplingLanczos
	ResamplingAverage
)

func (r Resampling) String() string {
	switch r {
	case ResamplingNearest:
		return "nearest"
	case ResamplingBilinear:
		return "bilinear"
	case ResamplingCubic:
		return "cubic"
	case ResamplingCubicSpline:
		return "cubic_spline"
	case ResamplingLanczos:
		return "lanczos"
	case ResamplingAverage:
		return "average"
	default:
		return fmt.Sprintf("Resampling(%d)", int(r))
	}
}

// ParseResampling parses the wire/config representation of a Resampling.
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(s) {
	case "nearest":
		return ResamplingNearest, nil
	case "bilinear":
		return ResamplingBilinear, nil
	case "cubic":
		return ResamplingCubic, nil
	case "cubic_spline", "cubicspline":
		return ResamplingCubicSpline, nil
	case "lanczos":
		return ResamplingLanczos, nil
	case "average":
		return ResamplingAverage, nil
	default:
		return 0, NewError(ErrConfig, "ParseResampling", fmt.Errorf("unknown resampling %q", s))
	}
}

// GDAL converts r to the raster I/O library's own resampling enum.
func (r Resampling) GDAL() godal.ResamplingAlg {
	switch r {
	case ResamplingNearest:
		return godal.Nearest
	case ResamplingBilinear:
		return godal.Bilinear
	case ResamplingCubic:
		return godal.Cubic
	case ResamplingCubicSpline:
		return godal.CubicSpline
	case ResamplingLanczos:
		return godal.Lanczos
	case ResamplingAverage:
		return godal.Average
	default:
		return godal.Bilinear
	}
}
