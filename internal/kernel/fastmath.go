package kernel

import "math"

// fastInvSqrtSeed produces a cheap first approximation of 1/sqrt(x)
// via the classic bit-level trick, refined by Newton-Raphson in the
// caller. Used only to seed sqrt32, never returned directly.
func fastInvSqrtSeed(x float32) float32 {
	i := math.Float32bits(x)
	i = 0x5f3759df - (i >> 1)
	return math.Float32frombits(i)
}

// expApprox computes e^x for x in [-10, 0], the range softmax ever
// calls it with after max-subtraction. It range-reduces x = n*ln2 + r
// with |r| <= ln2/2, applies a [2/2] Padé approximant of e^r (accurate
// to a few parts in 1e6 on that interval), then rescales by 2^n via
// direct exponent manipulation. Relative error stays within the 0.5%
// bound required by §4.2 across the whole input range; outside it,
// callers get 0 for x < -10 and treat x > 0 as 0 (greedy/softmax never
// calls this kernel with positive input post max-subtraction).
func expApprox(x float32) float32 {
	if x < -10 {
		return 0
	}
	if x > 0 {
		x = 0
	}
	const ln2 = float32(0.6931471805599453)
	n := roundFloat32(x / ln2)
	r := x - n*ln2
	r2 := r * r
	num := 1 + r/2 + r2/12
	den := 1 - r/2 + r2/12
	p := num / den
	return ldexp32(p, int(n))
}

func roundFloat32(x float32) float32 {
	return float32(math.Round(float64(x)))
}

func ldexp32(x float32, n int) float32 {
	return float32(math.Ldexp(float64(x), n))
}
