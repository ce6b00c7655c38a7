package fuse

import (
	"github.com/airbusgeo/godal"
)

// HomoConfig configures the correction run itself: whether to also write a
// parameter file, the worker pool size, and the per-block memory budget.
type HomoConfig struct {
	// ParamImage turns on writing the gain/offset/R² sidecar file.
	ParamImage bool
	// Threads is the worker pool size; 0 means all CPUs. 1 bypasses the
	// pool and processes blocks sequentially on the caller's goroutine.
	Threads int
	// MaxBlockMemMB caps the proc-CRS block size; <=0 means unlimited.
	MaxBlockMemMB float64
}

// DefaultHomoConfig returns the default run configuration.
func DefaultHomoConfig() HomoConfig {
	return HomoConfig{ParamImage: false, Threads: 0, MaxBlockMemMB: 100}
}

// OutputProfile overrides the source profile's driver/dtype/nodata/creation
// options for the corrected (and, with dtype/nodata always forced to
// float32/NaN, parameter) output file.
type OutputProfile struct {
	Driver          godal.DriverName
	DType           godal.DataType
	Nodata          float64
	CreationOptions map[string]string
}

// DefaultOutputProfile returns the default output profile: tiled GeoTIFF,
// float32, nodata 0, deflate compression.
func DefaultOutputProfile() OutputProfile {
	return OutputProfile{
		Driver: godal.GTiff,
		DType:  godal.Float32,
		Nodata: 0,
		CreationOptions: map[string]string{
			"TILED":     "YES",
			"BLOCKXSIZE": "512",
			"BLOCKYSIZE": "512",
			"COMPRESS":  "DEFLATE",
			"INTERLEAVE": "BAND",
		},
	}
}

func (p OutputProfile) creationOptions() []string {
	opts := make([]string, 0, len(p.CreationOptions))
	for k, v := range p.CreationOptions {
		opts = append(opts, k+"="+v)
	}
	return opts
}
