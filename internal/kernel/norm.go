package kernel

import (
	"fmt"
	"math"
)

// LayerNorm applies a fused single-pass mean+variance normalization
// (Welford's online recurrence) followed by an affine scale+bias, over
// the last dimension of an [rows, cols] span. On a constant-valued row
// the output equals bias exactly: mean converges to that constant with
// zero floating-point residual, so (v-mean) is exactly 0.
func LayerNorm(x, gamma, beta, out []float32, rows, cols int, eps float32) error {
	if len(x) < rows*cols || len(out) < rows*cols {
		return fmt.Errorf("kernel: layernorm: x/out too short for %dx%d", rows, cols)
	}
	if len(gamma) < cols || len(beta) < cols {
		return fmt.Errorf("kernel: layernorm: gamma/beta shorter than cols=%d", cols)
	}
	for r := 0; r < rows; r++ {
		row := x[r*cols : (r+1)*cols]
		var mean, m2 float32
		for i, v := range row {
			delta := v - mean
			mean += delta / float32(i+1)
			delta2 := v - mean
			m2 += delta * delta2
		}
		variance := m2 / float32(cols)
		invStd := float32(1) / float32(math.Sqrt(float64(variance+eps)))
		outRow := out[r*cols : (r+1)*cols]
		for i, v := range row {
			outRow[i] = (v-mean)*invStd*gamma[i] + beta[i]
		}
	}
	return nil
}
