package sampler

import (
	"math"
	"sort"
)

const negInf = float32(math.MaxFloat32) * -1

// applyTemperature implements §4.7 step 2, dividing every logit by
// temperature. Callers never reach here in greedy mode.
func applyTemperature(logits []float32, temperature float32) {
	for i := range logits {
		logits[i] /= temperature
	}
}

// rankOrder returns indices sorted by (value desc, id asc), the
// deterministic tie-break every filter stage shares.
func rankOrder(logits []float32) []int {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if logits[idx[a]] != logits[idx[b]] {
			return logits[idx[a]] > logits[idx[b]]
		}
		return idx[a] < idx[b]
	})
	return idx
}

// applyTopK implements §4.7 step 3: keep only the k highest-ranked
// logits, masking the rest to -inf. k == 0 disables the stage.
func applyTopK(logits []float32, k int) {
	if k <= 0 || k >= len(logits) {
		return
	}
	idx := rankOrder(logits)
	for _, i := range idx[k:] {
		logits[i] = negInf
	}
}

// applyTopP implements §4.7 step 4 (nucleus sampling): sort
// descending, keep the smallest prefix whose softmax mass reaches p,
// mask the rest. p >= 1.0 disables the stage.
func applyTopP(logits []float32, p float32) {
	if p >= 1.0 {
		return
	}
	idx := rankOrder(logits)
	probs := softmaxOrder(logits, idx)
	var cum float32
	cut := len(idx)
	for i, pr := range probs {
		cum += pr
		if cum >= p {
			cut = i + 1
			break
		}
	}
	for _, i := range idx[cut:] {
		logits[i] = negInf
	}
}

// applyMinP implements §4.7 step 5: drop any token whose softmax
// probability is below minP * pMax. minP == 0 disables the stage.
func applyMinP(logits []float32, minP float32) {
	if minP <= 0 {
		return
	}
	probs := softmaxCopy(logits)
	var pMax float32
	for _, pr := range probs {
		if pr > pMax {
			pMax = pr
		}
	}
	threshold := minP * pMax
	for i, pr := range probs {
		if pr < threshold {
			logits[i] = negInf
		}
	}
}

// softmaxCopy computes a numerically stable softmax over logits
// without mutating the caller's slice; used by stages that need
// probabilities as an intermediate (min-p, top-p, the final draw).
func softmaxCopy(logits []float32) []float32 {
	out := make([]float32, len(logits))
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float32
	for i, v := range logits {
		e := float32(math.Exp(float64(v - max)))
		out[i] = e
		sum += e
	}
	if sum == 0 {
		return out
	}
	inv := 1 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}

// softmaxOrder computes softmax probabilities over logits and returns
// them reordered to match idx (used once logits have already been
// rank-sorted, so top-p can walk the cumulative mass in rank order).
func softmaxOrder(logits []float32, idx []int) []float32 {
	probs := softmaxCopy(logits)
	out := make([]float32, len(idx))
	for i, id := range idx {
		out[i] = probs[id]
	}
	return out
}
