package kernel

import "fmt"

// Softmax applies a numerically stable row-wise softmax in place over
// an [rows, cols] span: subtract the per-row max, exponentiate with
// expApprox, divide by the row sum. Matches property P4 (output rows
// are a valid probability distribution) up to expApprox's bounded
// error.
func Softmax(x []float32, rows, cols int) error {
	if len(x) < rows*cols {
		return fmt.Errorf("kernel: softmax: x too short: have %d need %d", len(x), rows*cols)
	}
	for r := 0; r < rows; r++ {
		row := x[r*cols : (r+1)*cols]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float32
		for i, v := range row {
			e := expApprox(v - max)
			row[i] = e
			sum += e
		}
		if sum == 0 {
			continue
		}
		inv := 1 / sum
		for i := range row {
			row[i] *= inv
		}
	}
	return nil
}
