package rfutil

import (
	"fmt"
	"runtime"
)

// ResolveThreads maps the 0=auto convention onto runtime.NumCPU and rejects
// negative thread counts.
func ResolveThreads(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("threads must be >= 0, got %d", n)
	}
	if n == 0 {
		return runtime.NumCPU(), nil
	}
	return n, nil
}
