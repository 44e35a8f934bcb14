// Package sampler implements the §4.7 logit transform pipeline and
// seeded multinomial draw: penalties, temperature, top-k, top-p,
// min-p, then softmax and a tie-break-to-lowest-id draw.
package sampler

// Sampler holds one session's generation-time sampling state: the
// sliding window of recently emitted token ids (for the penalty
// stage) and the partitioned RNG the draw step pulls from.
type Sampler struct {
	cfg Config
	rng *PartitionedRNG

	window  []int       // ring buffer, capacity cfg.RepetitionWindow
	counts  map[int]int // occurrence count within the current window
	writeAt int
	filled  int
}

// New creates a Sampler for one session. seed is the session's 64-bit
// generation seed (see §6 GenerationRequest.seed); callers that want
// non-deterministic behavior still pass an explicit seed obtained once
// from a process-level source, since the engine itself never calls a
// time- or crypto-based RNG internally (determinism contract, P1).
func New(cfg Config, seed uint64) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sampler{cfg: cfg, rng: NewPartitionedRNG(seed)}
	if cfg.RepetitionWindow > 0 {
		s.window = make([]int, cfg.RepetitionWindow)
		s.counts = make(map[int]int)
	}
	return s, nil
}

// Sample runs the full §4.7 pipeline over logits (mutated in place)
// and returns the drawn token id. The just-drawn id is folded into the
// penalty window before returning, so the next call sees it.
func (s *Sampler) Sample(logits []float32) int {
	s.applyPenalties(logits)

	if s.cfg.IsGreedy() {
		id := argmaxLowestID(logits)
		s.observe(id)
		return id
	}

	applyTemperature(logits, s.cfg.Temperature)
	applyTopK(logits, s.cfg.TopK)
	applyTopP(logits, s.cfg.TopP)
	applyMinP(logits, s.cfg.MinP)

	probs := softmaxCopy(logits)
	id := s.draw(probs)
	s.observe(id)
	return id
}

// observe pushes id into the penalty window, evicting and
// decrementing the oldest entry once the window is full.
func (s *Sampler) observe(id int) {
	if len(s.window) == 0 {
		return
	}
	if s.filled == len(s.window) {
		old := s.window[s.writeAt]
		s.counts[old]--
		if s.counts[old] <= 0 {
			delete(s.counts, old)
		}
	} else {
		s.filled++
	}
	s.window[s.writeAt] = id
	s.counts[id]++
	s.writeAt = (s.writeAt + 1) % len(s.window)
}

// draw performs the seeded multinomial draw over probs, the lowest
// token id winning ties at identical cumulative-probability boundaries
// (natural consequence of scanning ids in ascending order and
// accepting the first index whose cumulative mass reaches the
// threshold).
func (s *Sampler) draw(probs []float32) int {
	r := float32(s.rng.ForSubsystem(subsystemDefault).Float64())
	var cum float32
	for id, p := range probs {
		cum += p
		if r <= cum {
			return id
		}
	}
	return len(probs) - 1
}

func argmaxLowestID(logits []float32) int {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return best
}
