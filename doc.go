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

// Package radfuse holds the types shared by every radfuse subpackage:
// error kinds, the correction Method and ProcCRS enumerations, and the
// Resampling enumeration used to configure warps between the source and
// reference grids.
//
// The heavy lifting lives in the subpackages:
//
//   - raster:     in-memory georeferenced band arrays (RasterArray)
//   - rasterpair: paired source/reference block iteration
//   - kernel:     the sliding-kernel linear model fitter/applier
//   - fuse:       the block-parallel fusion driver
package radfuse
