package quant

import (
	"fmt"

	"github.com/tinyforge/llminfer/internal/tensor"
)

// Weight is an immutable block-quantized weight matrix of logical shape
// [Rows, Cols], one row per output feature. Each row is independently
// quantized into ceil(Cols/BlockSize) blocks; if Cols is not a multiple
// of BlockSize the loader is expected to have zero-padded the final
// block (scale 0, elements 0).
type Weight struct {
	Rows, Cols int
	Scheme     tensor.Scheme // Q4_0 or Q8_0
	rowStride  int           // bytes per row
	Data       []byte        // Rows * rowStride bytes
}

func bytesPerBlock(s tensor.Scheme) (int, error) {
	switch s {
	case tensor.Q8_0:
		return q8BlockBytes, nil
	case tensor.Q4_0:
		return q4BlockBytes, nil
	default:
		return 0, fmt.Errorf("quant: unsupported scheme %s", s)
	}
}

// NewWeight quantizes a dense row-major [rows, cols] fp32 matrix into a
// block-quantized Weight. This is the loader's/test fixtures' entry
// point — the hot inference path never quantizes, only dequantizes.
func NewWeight(scheme tensor.Scheme, rows, cols int, dense []float32) (*Weight, error) {
	if len(dense) != rows*cols {
		return nil, fmt.Errorf("quant: dense length %d != rows*cols (%d*%d)", len(dense), rows, cols)
	}
	bpb, err := bytesPerBlock(scheme)
	if err != nil {
		return nil, err
	}
	blocksPerRow := blockCount(cols)
	rowStride := blocksPerRow * bpb
	w := &Weight{Rows: rows, Cols: cols, Scheme: scheme, rowStride: rowStride, Data: make([]byte, rows*rowStride)}

	padded := make([]float32, blocksPerRow*BlockSize)
	for r := 0; r < rows; r++ {
		copy(padded, dense[r*cols:(r+1)*cols])
		for i := cols; i < len(padded); i++ {
			padded[i] = 0
		}
		row := w.Data[r*rowStride : (r+1)*rowStride]
		for b := 0; b < blocksPerRow; b++ {
			block := padded[b*BlockSize : (b+1)*BlockSize]
			dst := row[b*bpb : (b+1)*bpb]
			switch scheme {
			case tensor.Q8_0:
				quantizeQ8Block(block, dst)
			case tensor.Q4_0:
				quantizeQ4Block(block, dst)
			}
		}
	}
	return w, nil
}

// MaxAbsScale returns the largest per-block scale used anywhere in the
// weight, used by callers (and property tests) to bound the round-trip
// error per §4.3/§8 P6.
func (w *Weight) MaxAbsScale() float32 {
	bpb, _ := bytesPerBlock(w.Scheme)
	blocksPerRow := w.rowStride / bpb
	var maxScale float32
	for r := 0; r < w.Rows; r++ {
		row := w.Data[r*w.rowStride : (r+1)*w.rowStride]
		for b := 0; b < blocksPerRow; b++ {
			scale := f16ToF32(le16(row[b*bpb : b*bpb+2]))
			if scale > maxScale {
				maxScale = scale
			}
		}
	}
	return maxScale
}

// dequantizeRow dequantizes logical row r into out (len >= Cols).
func (w *Weight) dequantizeRow(r int, out []float32) {
	bpb, _ := bytesPerBlock(w.Scheme)
	blocksPerRow := w.rowStride / bpb
	row := w.Data[r*w.rowStride : (r+1)*w.rowStride]
	var block [BlockSize]float32
	for b := 0; b < blocksPerRow; b++ {
		switch w.Scheme {
		case tensor.Q8_0:
			dequantizeQ8Block(row[b*bpb:(b+1)*bpb], block[:])
		case tensor.Q4_0:
			dequantizeQ4Block(row[b*bpb:(b+1)*bpb], block[:])
		}
		start := b * BlockSize
		end := start + BlockSize
		if end > len(out) {
			end = len(out)
		}
		if end > start {
			copy(out[start:end], block[:end-start])
		}
	}
}

// ToFP32 dequantizes the entire weight into a dense row-major matrix.
// Diagnostic only: allocates Rows*Cols float32s and must never be
// called on the hot matmul path.
func (w *Weight) ToFP32() []float32 {
	out := make([]float32, w.Rows*w.Cols)
	for r := 0; r < w.Rows; r++ {
		w.dequantizeRow(r, out[r*w.Cols:(r+1)*w.Cols])
	}
	return out
}

// Matmul computes C[m,n] = A[m,k] * W^T where W is this (logically
// [n,k]) quantized weight, i.e. row j of W is dotted against each
// activation row. This is the hot path: each weight block is
// dequantized into a fixed-size stack array and folded into the
// accumulator immediately, so no full fp32 row or matrix of W is ever
// materialized.
func (w *Weight) Matmul(a []float32, out []float32, m, k int) error {
	if k != w.Cols {
		return fmt.Errorf("quant: matmul k=%d != weight cols=%d", k, w.Cols)
	}
	if len(a) < m*k {
		return fmt.Errorf("quant: activations too short: have %d need %d", len(a), m*k)
	}
	n := w.Rows
	if len(out) < m*n {
		return fmt.Errorf("quant: output too short: have %d need %d", len(out), m*n)
	}
	bpb, _ := bytesPerBlock(w.Scheme)
	blocksPerRow := w.rowStride / bpb
	var block [BlockSize]float32

	for j := 0; j < n; j++ {
		row := w.Data[j*w.rowStride : (j+1)*w.rowStride]
		for i := 0; i < m; i++ {
			arow := a[i*k : (i+1)*k]
			var acc float32
			for b := 0; b < blocksPerRow; b++ {
				switch w.Scheme {
				case tensor.Q8_0:
					dequantizeQ8Block(row[b*bpb:(b+1)*bpb], block[:])
				case tensor.Q4_0:
					dequantizeQ4Block(row[b*bpb:(b+1)*bpb], block[:])
				}
				start := b * BlockSize
				end := start + BlockSize
				if end > k {
					end = k
				}
				for e := start; e < end; e++ {
					acc += arow[e] * block[e-start]
				}
			}
			out[i*n+j] = acc
		}
	}
	return nil
}
