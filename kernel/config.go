package kernel

import (
	"fmt"

	"github.com/geofuse/radfuse"
)

// ModelConfig configures the apply-side resampling and the gain_offset
// inpainting/masking behavior.
type ModelConfig struct {
	// Upsampling is used when resampling the ParamArray from a coarser
	// proc-CRS grid onto the source grid (RefSpaceModel), and when
	// upsampling the reference onto the source grid before fitting
	// (SrcSpaceModel).
	Upsampling radfuse.Resampling
	// Downsampling is used when reducing the source onto the coarser
	// reference grid before fitting (RefSpaceModel). SrcSpaceModel does not
	// use it.
	Downsampling radfuse.Resampling
	// R2InpaintThresh is the per-pixel R² floor below which gain_offset
	// flags a pixel's offset for inpainting. Must be in [0, 1].
	R2InpaintThresh float64
	// MaskPartial, when true, masks RefSpaceModel output pixels whose
	// kernel footprint only partially overlapped the reference.
	MaskPartial bool
}

// DefaultModelConfig returns the default model configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Upsampling:      radfuse.ResamplingCubicSpline,
		Downsampling:    radfuse.ResamplingAverage,
		R2InpaintThresh: 0,
		MaskPartial:     false,
	}
}

// Validate checks c's fields are within range.
func (c ModelConfig) Validate() error {
	if c.R2InpaintThresh < 0 || c.R2InpaintThresh > 1 {
		return radfuse.NewError(radfuse.ErrConfig, "kernel.ModelConfig.Validate",
			fmt.Errorf("r2_inpaint_thresh must be in [0, 1], got %f", c.R2InpaintThresh))
	}
	return nil
}

// ParamCount returns the number of ParamArray bands method emits: 1 for
// gain, 2 for gain_blk_offset, 3 for gain_offset (gain, offset, R²).
func ParamCount(method radfuse.Method) int {
	switch method {
	case radfuse.MethodGain:
		return 1
	case radfuse.MethodGainBlockOffset:
		return 2
	case radfuse.MethodGainOffset:
		return 3
	default:
		return 1
	}
}
