package kernel

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

// Residual computes a += b element-wise, delegating to gonum's
// single-precision Saxpy (a = 1*b + a) so the add is SIMD-vectorized
// with no allocation.
func Residual(a, b []float32) error {
	if len(a) != len(b) {
		return fmt.Errorf("kernel: residual: length mismatch %d != %d", len(a), len(b))
	}
	blas32.Implementation().Saxpy(len(a), 1, b, 1, a, 1)
	return nil
}
