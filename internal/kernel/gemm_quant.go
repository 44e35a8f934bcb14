package kernel

import (
	"sync"

	"github.com/tinyforge/llminfer/internal/quant"
)

// QuantMatmul computes C[m,n] = A[m,k] . W^T for a block-quantized
// weight W of logical shape [n,k] (one row per output feature). It
// dequantizes each block on the fly via quant.Weight.Matmul; this path
// is hand-rolled rather than a BLAS call because no BLAS routine
// operates on Q4_0/Q8_0 blocks.
func QuantMatmul(pool *Pool, a []float32, w *quant.Weight, c []float32, m, k int) error {
	n := w.Rows
	tile := RowTileSize
	work := m * k * n
	if work < RowTileThreshold {
		tile = m
	}
	var mu sync.Mutex
	var firstErr error
	pool.ParallelRows(m, tile, func(rs, re int) {
		rows := re - rs
		if rows <= 0 {
			return
		}
		if err := w.Matmul(a[rs*k:re*k], c[rs*n:re*n], rows, k); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	})
	return firstErr
}
