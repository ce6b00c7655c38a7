package rfutil

import "fmt"

// ValidateKernelShape checks a (height, width) kernel shape against the
// rules for method: both dimensions must be odd and >= 1 for gain and
// gain_blk_offset, and >= 5 for gain_offset (the 2-parameter least-squares
// fit needs a well-conditioned window).
//
// gainOffset selects the stricter rule without importing the radfuse
// package's Method type here, keeping this leaf package dependency-free.
func ValidateKernelShape(shape [2]int, gainOffset bool) error {
	minDim := 1
	if gainOffset {
		minDim = 5
	}
	for _, d := range shape {
		if d < minDim {
			return fmt.Errorf("kernel dimension %d is below the minimum of %d", d, minDim)
		}
		if d%2 == 0 {
			return fmt.Errorf("kernel dimension %d is not odd", d)
		}
	}
	return nil
}

// OverlapForKernel returns the (row, col) halo a kernel of the given shape
// requires around a block: half the kernel extent, rounded down.
func OverlapForKernel(shape [2]int) [2]int {
	return [2]int{shape[0] / 2, shape[1] / 2}
}
