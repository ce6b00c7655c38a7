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

// Command radfuse corrects a source raster's radiometry against a coarser
// reference raster by fitting a per-pixel linear model over a sliding
// kernel.
package main

import (
	"fmt"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/geofuse/radfuse"
	"github.com/geofuse/radfuse/fuse"
	"github.com/geofuse/radfuse/kernel"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outPath         string
	methodStr       string
	procCRSStr      string
	kernelH         int
	kernelW         int
	threads         int
	maxBlockMemMB   float64
	paramImage      bool
	overwrite       bool
	upsamplingStr   string
	downsamplingStr string
	r2InpaintThresh float64
	maskPartial     bool
	outDriver       string
	outNodata       float64
)

func init() {
	fuseCommand.Flags().StringVarP(&outPath, "out", "o", ".", "output directory or corrected file path")
	fuseCommand.Flags().StringVarP(&methodStr, "method", "m", "gain_blk_offset", "correction method: gain, gain_blk_offset, gain_offset")
	fuseCommand.Flags().StringVar(&procCRSStr, "proc-crs", "auto", "processing grid: auto, src, ref")
	fuseCommand.Flags().IntVar(&kernelH, "kernel-rows", 5, "kernel height (odd)")
	fuseCommand.Flags().IntVar(&kernelW, "kernel-cols", 5, "kernel width (odd)")
	fuseCommand.Flags().IntVarP(&threads, "threads", "t", 0, "worker pool size, 0 = all CPUs, 1 = sequential")
	fuseCommand.Flags().Float64Var(&maxBlockMemMB, "max-block-mem", 100, "per-block memory budget, in MB")
	fuseCommand.Flags().BoolVar(&paramImage, "param-image", false, "also write a gain/offset/R2 parameter file")
	fuseCommand.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing output files")
	fuseCommand.Flags().StringVar(&upsamplingStr, "upsampling", "cubic_spline", "resampling used when upsampling params/ref")
	fuseCommand.Flags().StringVar(&downsamplingStr, "downsampling", "average", "resampling used when downsampling source to fit")
	fuseCommand.Flags().Float64Var(&r2InpaintThresh, "r2-inpaint-thresh", 0, "R^2 floor below which gain_offset offsets are inpainted")
	fuseCommand.Flags().BoolVar(&maskPartial, "mask-partial", false, "mask source pixels whose kernel only partially overlapped the reference")
	fuseCommand.Flags().StringVar(&outDriver, "driver", "GTiff", "output raster driver")
	fuseCommand.Flags().Float64Var(&outNodata, "nodata", 0, "output nodata value")
}

func main() {
	if err := fuseCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var fuseCommand = &cobra.Command{
	Use:   "radfuse src ref",
	Short: "correct a source raster's radiometry against a reference raster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		godal.RegisterAll()
		ctx := cmd.Context()

		srcPath, refPath := args[0], args[1]
		method, err := radfuse.ParseMethod(methodStr)
		if err != nil {
			return err
		}
		procCRS, err := radfuse.ParseProcCRS(procCRSStr)
		if err != nil {
			return err
		}
		upsampling, err := radfuse.ParseResampling(upsamplingStr)
		if err != nil {
			return err
		}
		downsampling, err := radfuse.ParseResampling(downsamplingStr)
		if err != nil {
			return err
		}

		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer logger.Sync()

		homo := fuse.HomoConfig{ParamImage: paramImage, Threads: threads, MaxBlockMemMB: maxBlockMemMB}
		modelConfig := kernel.ModelConfig{
			Upsampling: upsampling, Downsampling: downsampling,
			R2InpaintThresh: r2InpaintThresh, MaskPartial: maskPartial,
		}
		outProfile := fuse.DefaultOutputProfile()
		outProfile.Driver = godal.DriverName(outDriver)
		outProfile.Nodata = outNodata

		rf, err := fuse.New(srcPath, refPath, outPath, method, [2]int{kernelH, kernelW}, procCRS,
			homo, modelConfig, outProfile, overwrite, logger)
		if err != nil {
			return err
		}
		if err := rf.Open(); err != nil {
			return err
		}
		if err := rf.Process(ctx); err != nil {
			rf.Close()
			return err
		}
		if err := rf.Close(); err != nil {
			return err
		}

		logger.Info("fusion complete", zap.String("out", rf.OutPath()))
		return nil
	},
}
