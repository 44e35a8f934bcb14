package kernel

import "fmt"

// AttentionScores computes S[i,j] = (q_i . k_j) / sqrt(dHead) for
// j <= i and -Inf otherwise, writing the causal mask during the same
// pass that computes the score rather than as a separate post-pass. Q
// is [tq, dHead], K is [tk, dHead] (tk = number of valid key
// positions so far, tq new query positions are assumed to occupy the
// last tq absolute positions of the tk key range — i.e. query row i
// corresponds to absolute position tk-tq+i). S is [tq, tk].
func AttentionScores(pool *Pool, q, k []float32, s []float32, tq, tk, dHead int) error {
	if len(q) < tq*dHead {
		return fmt.Errorf("kernel: attention: q too short")
	}
	if len(k) < tk*dHead {
		return fmt.Errorf("kernel: attention: k too short")
	}
	if len(s) < tq*tk {
		return fmt.Errorf("kernel: attention: s too short")
	}
	if err := GEMMTransB(pool, q, k, s, tq, dHead, tk); err != nil {
		return err
	}
	scale := float32(1) / sqrt32(float32(dHead))
	basePos := tk - tq
	for i := 0; i < tq; i++ {
		row := s[i*tk : (i+1)*tk]
		causalEnd := basePos + i + 1
		for j := 0; j < tk; j++ {
			if j < causalEnd {
				row[j] *= scale
			} else {
				row[j] = negInf
			}
		}
	}
	return nil
}

// ContextFromScores computes out[tq, dHead] = softmaxedScores[tq,tk] . V[tk,dHead].
func ContextFromScores(pool *Pool, scores, v, out []float32, tq, tk, dHead int) error {
	return GEMM(pool, scores, v, out, tq, tk, dHead)
}

const negInf = float32(-1e30) // finite stand-in for -Inf that never itself overflows in softmax's exp

func sqrt32(x float32) float32 {
	// Newton-Raphson refinement from a fast bit-level seed, avoiding a
	// libm call on the kernel hot path.
	if x <= 0 {
		return 0
	}
	y := fastInvSqrtSeed(x)
	y = y * (1.5 - 0.5*x*y*y)
	y = y * (1.5 - 0.5*x*y*y)
	return x * y
}
