package kernel

import "math"

// geluCoeff is sqrt(2/pi), the constant in the tanh-based GELU
// approximation used throughout the transformer block's MLP.
const geluCoeff = 0.7978845608028654

// GELU applies the tanh-based GELU approximation in place:
// 0.5*x*(1 + tanh(sqrt(2/pi)*(x + 0.044715*x^3))).
func GELU(x []float32) {
	for i, v := range x {
		v64 := float64(v)
		inner := geluCoeff * (v64 + 0.044715*v64*v64*v64)
		x[i] = float32(0.5 * v64 * (1 + math.Tanh(inner)))
	}
}

// GatedMLP computes h = GELU(xGate) * xUp element-wise in place into
// xGate, implementing the gated-MLP nonlinearity of §4.4 step 10.
func GatedMLP(xGate, xUp []float32) {
	GELU(xGate)
	for i := range xGate {
		xGate[i] *= xUp[i]
	}
}
