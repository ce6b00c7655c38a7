package rfutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutputPostfix builds the "_FUSE_c<PROC>_m<METHOD>_k<H>_<W>.<ext>" suffix
// used to derive an automatic output filename from the source stem.
func OutputPostfix(proc, method string, kernelShape [2]int, ext string) string {
	if ext == "" {
		ext = ".tif"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("_FUSE_c%s_m%s_k%d_%d%s", proc, method, kernelShape[0], kernelShape[1], ext)
}

// ParamFilename derives "<stem>_PARAMS<ext>" from a corrected-image path.
func ParamFilename(outPath string) string {
	ext := filepath.Ext(outPath)
	stem := strings.TrimSuffix(outPath, ext)
	return stem + "_PARAMS" + ext
}
