package quant

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tinyforge/llminfer/internal/tensor"
)

func TestF16RoundTrip(t *testing.T) {
	vals := []float32{0, 1, -1, 0.5, -0.5, 123.25, -65504, 1e-5}
	for _, v := range vals {
		got := f16ToF32(f32ToF16(v))
		if math.Abs(float64(got-v)) > 0.01*math.Abs(float64(v))+1e-3 {
			t.Errorf("f16 round trip for %v: got %v", v, got)
		}
	}
}

// TestQuantRoundTripBound exercises scenario 5 / property P6: a random
// 64x64 fp32 matrix uniform in [-1, 1], quantized and dequantized, must
// stay within scale*8 (Q4_0) or scale (Q8_0) of the original per element.
func TestQuantRoundTripBound(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rows, cols := 64, 64
	dense := make([]float32, rows*cols)
	for i := range dense {
		dense[i] = float32(rng.Float64()*2 - 1)
	}

	for _, tc := range []struct {
		name   string
		scheme tensor.Scheme
		factor float32
	}{
		{"q4_0", tensor.Q4_0, 8},
		{"q8_0", tensor.Q8_0, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewWeight(tc.scheme, rows, cols, dense)
			if err != nil {
				t.Fatalf("NewWeight: %v", err)
			}
			maxScale := w.MaxAbsScale()
			got := w.ToFP32()
			var maxErr float32
			for i := range dense {
				e := got[i] - dense[i]
				if e < 0 {
					e = -e
				}
				if e > maxErr {
					maxErr = e
				}
			}
			bound := maxScale * tc.factor
			if maxErr > bound+1e-4 {
				t.Errorf("max abs error %v exceeds bound %v (maxScale=%v)", maxErr, bound, maxScale)
			}
		})
	}
}

// TestQuantizedMatmulAgreement is property P7: matmul(A, Q(B)) must
// agree with A . dequantize(Q(B)) up to float rounding.
func TestQuantizedMatmulAgreement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m, k, n := 4, 70, 5 // k not a multiple of BlockSize, exercises padding
	a := make([]float32, m*k)
	for i := range a {
		a[i] = float32(rng.Float64()*2 - 1)
	}
	dense := make([]float32, n*k)
	for i := range dense {
		dense[i] = float32(rng.Float64()*2 - 1)
	}

	for _, scheme := range []tensor.Scheme{tensor.Q4_0, tensor.Q8_0} {
		w, err := NewWeight(scheme, n, k, dense)
		if err != nil {
			t.Fatalf("NewWeight: %v", err)
		}
		fast := make([]float32, m*n)
		if err := w.Matmul(a, fast, m, k); err != nil {
			t.Fatalf("Matmul: %v", err)
		}

		deq := w.ToFP32()
		ref := make([]float32, m*n)
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var acc float32
				for kk := 0; kk < k; kk++ {
					acc += a[i*k+kk] * deq[j*k+kk]
				}
				ref[i*n+j] = acc
			}
		}
		for idx := range ref {
			if math.Abs(float64(fast[idx]-ref[idx])) > 1e-3 {
				t.Errorf("scheme %v: matmul[%d] = %v, want %v", scheme, idx, fast[idx], ref[idx])
			}
		}
	}
}

func TestNewWeight_RejectsLengthMismatch(t *testing.T) {
	if _, err := NewWeight(tensor.Q8_0, 2, 2, make([]float32, 3)); err == nil {
		t.Fatalf("expected error on length mismatch")
	}
}
