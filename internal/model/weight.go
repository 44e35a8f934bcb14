package model

import (
	"fmt"

	"github.com/tinyforge/llminfer/internal/kernel"
	"github.com/tinyforge/llminfer/internal/quant"
)

// WeightMatrix is the capability set §9 calls for in place of a class
// hierarchy: every weight, dense or quantized, exposes the same two
// operations (matmul and a diagnostic dequantize), dispatched at the
// entry point of each call rather than through inheritance.
type WeightMatrix interface {
	// Rows reports the logical output-feature count (n).
	Rows() int
	// Cols reports the logical input-feature count (k).
	Cols() int
	// Matmul computes out[m,Rows] = a[m,Cols] . W^T via pool, the hot path.
	Matmul(pool *kernel.Pool, a []float32, out []float32, m int) error
	// ToFP32 dequantizes the whole matrix; diagnostic only.
	ToFP32() []float32
}

// DenseWeight is a plain row-major fp32 weight of logical shape
// [rows, cols] (one row per output feature), the fp32/fp16-after-load
// case of §6.
type DenseWeight struct {
	rows, cols int
	Data       []float32 // rows*cols
}

// NewDenseWeight wraps a dense row-major matrix as a WeightMatrix.
func NewDenseWeight(rows, cols int, data []float32) (*DenseWeight, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("model: dense weight: data length %d != rows*cols (%d*%d)", len(data), rows, cols)
	}
	return &DenseWeight{rows: rows, cols: cols, Data: data}, nil
}

func (d *DenseWeight) Rows() int { return d.rows }
func (d *DenseWeight) Cols() int { return d.cols }

func (d *DenseWeight) Matmul(pool *kernel.Pool, a []float32, out []float32, m int) error {
	return kernel.GEMMTransB(pool, a, d.Data, out, m, d.cols, d.rows)
}

func (d *DenseWeight) ToFP32() []float32 {
	out := make([]float32, len(d.Data))
	copy(out, d.Data)
	return out
}

// quantWeight adapts *quant.Weight to WeightMatrix.
type quantWeight struct {
	w *quant.Weight
}

// NewQuantWeight wraps a block-quantized weight as a WeightMatrix.
func NewQuantWeight(w *quant.Weight) WeightMatrix {
	return quantWeight{w: w}
}

func (q quantWeight) Rows() int { return q.w.Rows }
func (q quantWeight) Cols() int { return q.w.Cols }

func (q quantWeight) Matmul(pool *kernel.Pool, a []float32, out []float32, m int) error {
	return kernel.QuantMatmul(pool, a, q.w, out, m, q.w.Cols)
}

func (q quantWeight) ToFP32() []float32 {
	return q.w.ToFP32()
}
