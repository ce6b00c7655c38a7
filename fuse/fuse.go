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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/internal/rfutil"
	"github.com/geofuse/radfuse/kernel"
	"github.com/geofuse/radfuse/raster"
	"github.com/geofuse/radfuse/rasterpair"
	"go.uber.org/zap"
)

// fitApplier is satisfied by *kernel.RefSpaceModel and *kernel.SrcSpaceModel.
type fitApplier interface {
	FitApply(src, ref *raster.Array) (*raster.Array, *raster.Array, error)
}

// RasterFuse corrects a source image against a reference image, writing a
// corrected output file and, optionally, a parameter (gain/offset/R²)
// sidecar file.
type RasterFuse struct {
	pair   *rasterpair.RasterPairReader
	model  fitApplier
	logger *zap.Logger

	method      radfuse.Method
	kernelShape [2]int
	homo        HomoConfig
	modelConfig kernel.ModelConfig
	outProfile  OutputProfile

	outPath   string
	paramPath string

	// outTmpPath/paramTmpPath name the working GTiff each dataset is
	// actually created at when outProfile.Driver is GTiff; Process
	// finalizes them into outPath/paramPath via a cogger.Rewrite COG
	// pass once all blocks and overviews are written. Empty when the
	// driver isn't GTiff (no COG finalization applies) or once
	// finalization has consumed them.
	outTmpPath   string
	paramTmpPath string

	outDS   *godal.Dataset
	paramDS *godal.Dataset

	writeLock sync.Mutex
	paramLock sync.Mutex
}

// New opens the source/reference pair, resolves proc-CRS, validates the
// kernel shape, derives the output/parameter filenames, and builds the
// fit/apply model. The output and parameter files are not created until
// Open is called.
func New(
	srcPath, refPath, outPath string,
	method radfuse.Method, kernelShape [2]int, procCRS radfuse.ProcCRS,
	homo HomoConfig, modelConfig kernel.ModelConfig, outProfile OutputProfile,
	overwrite bool, logger *zap.Logger,
) (*RasterFuse, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pair, err := rasterpair.New(srcPath, refPath, procCRS, logger)
	if err != nil {
		return nil, err
	}

	outFile, paramFile, err := resolveOutputPaths(outPath, srcPath, pair.ProcCRS(), method, kernelShape, outProfile.Driver)
	if err != nil {
		return nil, err
	}
	if !overwrite {
		if _, err := os.Stat(outFile); err == nil {
			return nil, radfuse.NewError(radfuse.ErrFileExists, "fuse.New", fmt.Errorf("%s exists", outFile))
		}
		if homo.ParamImage {
			if _, err := os.Stat(paramFile); err == nil {
				return nil, radfuse.NewError(radfuse.ErrFileExists, "fuse.New", fmt.Errorf("%s exists", paramFile))
			}
		}
	}

	var model fitApplier
	if pair.ProcCRS() == radfuse.ProcSrc {
		model, err = kernel.NewSrcSpaceModel(method, kernelShape, homo.ParamImage, modelConfig, logger)
	} else {
		model, err = kernel.NewRefSpaceModel(method, kernelShape, homo.ParamImage, modelConfig, logger)
	}
	if err != nil {
		return nil, err
	}

	return &RasterFuse{
		pair: pair, model: model, logger: logger,
		method: method, kernelShape: kernelShape,
		homo: homo, modelConfig: modelConfig, outProfile: outProfile,
		outPath: outFile, paramPath: paramFile,
	}, nil
}

// resolveOutputPaths derives the corrected/parameter output filenames: if
// outPath names a directory, the corrected filename is auto-generated from
// the source stem and run parameters; otherwise outPath is used as-is.
// The parameter filename is always derived from the corrected filename.
func resolveOutputPaths(outPath, srcPath string, proc radfuse.ProcCRS, method radfuse.Method, kernelShape [2]int, driver godal.DriverName) (string, string, error) {
	info, err := os.Stat(outPath)
	outFile := outPath
	if err == nil && info.IsDir() {
		stem := filepath.Base(srcPath)
		ext := filepath.Ext(stem)
		stem = stem[:len(stem)-len(ext)]
		postfix := rfutil.OutputPostfix(proc.String(), method.String(), kernelShape, ext)
		outFile = filepath.Join(outPath, stem+postfix)
	}
	return outFile, rfutil.ParamFilename(outFile), nil
}

// OutPath returns the corrected output file path that will be (or was)
// created.
func (f *RasterFuse) OutPath() string { return f.outPath }

// ParamPath returns the parameter file path that will be (or was) created
// if HomoConfig.ParamImage is set.
func (f *RasterFuse) ParamPath() string { return f.paramPath }
