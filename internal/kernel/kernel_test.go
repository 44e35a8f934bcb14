package kernel

import (
	"math"
	"testing"
)

func TestGEMM_MatchesNaive(t *testing.T) {
	pool := NewPool(2)
	m, k, n := 3, 4, 5
	a := seqFloats(m * k)
	b := seqFloats(k * n)
	c := make([]float32, m*n)
	if err := GEMM(pool, a, b, c, m, k, n); err != nil {
		t.Fatalf("GEMM: %v", err)
	}
	want := naiveGEMM(a, b, m, k, n)
	assertClose(t, c, want, 1e-3)
}

func TestGEMM_TiledMatchesInline(t *testing.T) {
	pool1 := NewPool(1)
	pool4 := NewPool(4)
	m, k, n := 200, 64, 32 // m*k*n = 409600 >= RowTileThreshold, so pool4 splits rows into 64-row tiles
	a := seqFloats(m * k)
	b := seqFloats(k * n)
	c1 := make([]float32, m*n)
	c4 := make([]float32, m*n)
	if err := GEMM(pool1, a, b, c1, m, k, n); err != nil {
		t.Fatalf("GEMM pool1: %v", err)
	}
	if err := GEMM(pool4, a, b, c4, m, k, n); err != nil {
		t.Fatalf("GEMM pool4: %v", err)
	}
	assertClose(t, c1, c4, 1e-3)
}

func TestGEMMTransB_MatchesNaive(t *testing.T) {
	pool := NewPool(1)
	m, k, n := 2, 4, 3
	a := seqFloats(m * k)
	bT := seqFloats(n * k) // B stored as [n,k]
	c := make([]float32, m*n)
	if err := GEMMTransB(pool, a, bT, c, m, k, n); err != nil {
		t.Fatalf("GEMMTransB: %v", err)
	}
	want := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc float32
			for kk := 0; kk < k; kk++ {
				acc += a[i*k+kk] * bT[j*k+kk]
			}
			want[i*n+j] = acc
		}
	}
	assertClose(t, c, want, 1e-3)
}

func TestAttentionScores_CausalMask(t *testing.T) {
	pool := NewPool(1)
	tq, tk, dHead := 2, 3, 4 // one past position + two new => tk=3, tq=2
	q := seqFloats(tq * dHead)
	k := seqFloats(tk * dHead)
	s := make([]float32, tq*tk)
	if err := AttentionScores(pool, q, k, s, tq, tk, dHead); err != nil {
		t.Fatalf("AttentionScores: %v", err)
	}
	// basePos = tk - tq = 1. Row 0 (absolute pos 1) sees keys [0,1], masks key 2.
	if s[0*tk+2] != negInf {
		t.Errorf("expected row 0 key 2 masked, got %v", s[0*tk+2])
	}
	// Row 1 (absolute pos 2) sees all keys [0,1,2].
	for j := 0; j < tk; j++ {
		if s[1*tk+j] == negInf {
			t.Errorf("expected row 1 key %d unmasked, got -inf", j)
		}
	}
}

func TestSoftmax_IsDistribution(t *testing.T) {
	rows, cols := 4, 6
	x := make([]float32, rows*cols)
	for i := range x {
		x[i] = float32(i%7) - 3
	}
	if err := Softmax(x, rows, cols); err != nil {
		t.Fatalf("Softmax: %v", err)
	}
	for r := 0; r < rows; r++ {
		var sum float32
		for _, v := range x[r*cols : (r+1)*cols] {
			if v < 0 {
				t.Errorf("negative probability %v", v)
			}
			sum += v
		}
		if math.Abs(float64(sum-1)) > 1e-4 {
			t.Errorf("row %d sums to %v, want ~1", r, sum)
		}
	}
}

func TestSoftmax_HandlesFullyMaskedRow(t *testing.T) {
	x := []float32{negInf, negInf, negInf}
	if err := Softmax(x, 1, 3); err != nil {
		t.Fatalf("Softmax: %v", err)
	}
}

func TestLayerNorm_ConstantRowEqualsBias(t *testing.T) {
	cols := 8
	x := make([]float32, cols)
	for i := range x {
		x[i] = 3.5
	}
	gamma := make([]float32, cols)
	beta := make([]float32, cols)
	for i := range gamma {
		gamma[i] = 2
		beta[i] = float32(i)
	}
	out := make([]float32, cols)
	if err := LayerNorm(x, gamma, beta, out, 1, cols, 1e-5); err != nil {
		t.Fatalf("LayerNorm: %v", err)
	}
	assertClose(t, out, beta, 1e-6)
}

func TestGELU_ZeroIsZero(t *testing.T) {
	x := []float32{0}
	GELU(x)
	if x[0] != 0 {
		t.Errorf("GELU(0) = %v, want 0", x[0])
	}
}

func TestRoPE_PositionZeroIsIdentity(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	orig := append([]float32(nil), x...)
	if err := RoPE(x, 1, 4, 0, 10000); err != nil {
		t.Fatalf("RoPE: %v", err)
	}
	assertClose(t, x, orig, 1e-5)
}

func TestResidual_Adds(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{10, 20, 30}
	if err := Residual(a, b); err != nil {
		t.Fatalf("Residual: %v", err)
	}
	assertClose(t, a, []float32{11, 22, 33}, 1e-6)
}

func TestExpApprox_BoundedRelativeError(t *testing.T) {
	for x := -10.0; x <= 0; x += 0.1 {
		got := expApprox(float32(x))
		want := math.Exp(x)
		if want == 0 {
			continue
		}
		relErr := math.Abs(float64(got)-want) / want
		if relErr > 0.005 {
			t.Errorf("expApprox(%v) = %v, want ~%v (relErr %v)", x, got, want, relErr)
		}
	}
}

func seqFloats(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%5) - 2
	}
	return out
}

func naiveGEMM(a, b []float32, m, k, n int) []float32 {
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc float32
			for kk := 0; kk < k; kk++ {
				acc += a[i*k+kk] * b[kk*n+j]
			}
			out[i*n+j] = acc
		}
	}
	return out
}

func assertClose(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Errorf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}
