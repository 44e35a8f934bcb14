package kernel

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// GEMM computes C[m,n] += A[m,k] . B[k,n] in place (the caller clears C
// first if a fresh product rather than an accumulation is wanted). A, B
// and C are contiguous row-major spans. Above RowTileThreshold total
// work the product is tiled across pool in row blocks of RowTileSize;
// each tile's arithmetic is delegated to gonum's single-precision BLAS
// (blas32), which is the SIMD-vectorized inner loop — tiling only
// decides how work is partitioned across goroutines, never reorders
// the arithmetic within a tile, so results are deterministic.
func GEMM(pool *Pool, a, b, c []float32, m, k, n int) error {
	if err := checkGEMMShapes(a, b, c, m, k, n); err != nil {
		return err
	}
	impl := blas32.Implementation()
	work := m * k * n
	tile := RowTileSize
	if work < RowTileThreshold {
		tile = m // no splitting
	}
	pool.ParallelRows(m, tile, func(rs, re int) {
		rows := re - rs
		if rows <= 0 {
			return
		}
		impl.Sgemm(blas.NoTrans, blas.NoTrans, rows, n, k,
			1, a[rs*k:re*k], k,
			b, n,
			1, c[rs*n:re*n], n)
	})
	return nil
}

// GEMMTransB computes C[m,n] += A[m,k] . B^T where B is stored row
// major as [n,k] (used for Q.K^T in attention, where K is laid out one
// row per key position). Tiling and determinism follow GEMM.
func GEMMTransB(pool *Pool, a, b, c []float32, m, k, n int) error {
	if len(a) < m*k {
		return fmt.Errorf("kernel: gemm-transb: a too short: have %d need %d", len(a), m*k)
	}
	if len(b) < n*k {
		return fmt.Errorf("kernel: gemm-transb: b too short: have %d need %d", len(b), n*k)
	}
	if len(c) < m*n {
		return fmt.Errorf("kernel: gemm-transb: c too short: have %d need %d", len(c), m*n)
	}
	impl := blas32.Implementation()
	work := m * k * n
	tile := RowTileSize
	if work < RowTileThreshold {
		tile = m
	}
	pool.ParallelRows(m, tile, func(rs, re int) {
		rows := re - rs
		if rows <= 0 {
			return
		}
		impl.Sgemm(blas.NoTrans, blas.Trans, rows, n, k,
			1, a[rs*k:re*k], k,
			b, k,
			1, c[rs*n:re*n], n)
	})
	return nil
}

func checkGEMMShapes(a, b, c []float32, m, k, n int) error {
	if m <= 0 || k <= 0 || n <= 0 {
		return fmt.Errorf("kernel: gemm: non-positive dimension m=%d k=%d n=%d", m, k, n)
	}
	if len(a) < m*k {
		return fmt.Errorf("kernel: gemm: a too short: have %d need %d", len(a), m*k)
	}
	if len(b) < k*n {
		return fmt.Errorf("kernel: gemm: b too short: have %d need %d", len(b), k*n)
	}
	if len(c) < m*n {
		return fmt.Errorf("kernel: gemm: c too short: have %d need %d", len(c), m*n)
	}
	return nil
}
