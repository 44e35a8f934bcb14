package sampler

// applyPenalties implements §4.7 step 1: for every token seen in the
// current repetition window, apply repetition (multiplicative),
// presence (additive) and frequency (additive, count-scaled) penalties
// in that order, each independently neutral at its default value.
func (s *Sampler) applyPenalties(logits []float32) {
	if len(s.counts) == 0 {
		return
	}
	for id, count := range s.counts {
		if id < 0 || id >= len(logits) {
			continue
		}
		if s.cfg.RepetitionPenalty > 1.0 {
			if logits[id] > 0 {
				logits[id] /= s.cfg.RepetitionPenalty
			} else {
				logits[id] *= s.cfg.RepetitionPenalty
			}
		}
		if s.cfg.PresencePenalty > 0 {
			logits[id] -= s.cfg.PresencePenalty
		}
		if s.cfg.FrequencyPenalty > 0 {
			logits[id] -= s.cfg.FrequencyPenalty * float32(count)
		}
	}
}
