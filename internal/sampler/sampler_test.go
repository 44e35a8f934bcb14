package sampler

import "testing"

func logitsFixture() []float32 {
	return []float32{1, 5, 3, 5, 0, -2, 4}
}

func TestSample_GreedyIsArgmaxLowestID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = GreedyThreshold
	s, err := New(cfg, 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logits := logitsFixture() // two tokens tie at value 5: ids 1 and 3
	id := s.Sample(logits)
	if id != 1 {
		t.Errorf("expected lowest-id tie winner 1, got %d", id)
	}
}

func TestSample_DeterministicForFixedSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0.7
	cfg.TopP = 0.9
	cfg.RepetitionPenalty = 1.1
	cfg.RepetitionWindow = 64

	run := func() []int {
		s, err := New(cfg, 1234)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		var out []int
		for i := 0; i < 20; i++ {
			logits := logitsFixture()
			out = append(out, s.Sample(logits))
		}
		return out
	}
	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("run diverged at step %d: %d != %d", i, a[i], b[i])
		}
	}
}

func TestSample_NoTenTokenRunUnderRepetitionPenalty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 0.7
	cfg.TopP = 0.9
	cfg.RepetitionPenalty = 1.1
	cfg.RepetitionWindow = 64
	s, err := New(cfg, 99)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run := 1
	last := -1
	for i := 0; i < 200; i++ {
		logits := logitsFixture()
		id := s.Sample(logits)
		if id == last {
			run++
			if run >= 10 {
				t.Fatalf("10-token identical run detected at step %d", i)
			}
		} else {
			run = 1
		}
		last = id
	}
}

func TestApplyTopK_RemovesBelowKth(t *testing.T) {
	logits := []float32{5, 1, 4, 2, 3}
	applyTopK(logits, 2)
	survivors := 0
	for _, v := range logits {
		if v != negInf {
			survivors++
		}
	}
	if survivors != 2 {
		t.Fatalf("expected 2 survivors, got %d", survivors)
	}
	if logits[0] == negInf || logits[2] == negInf {
		t.Errorf("expected the two largest (idx 0 and 2) to survive top-2")
	}
}

func TestApplyTopK_DisabledAtZero(t *testing.T) {
	logits := []float32{5, 1, 4, 2, 3}
	applyTopK(logits, 0)
	for _, v := range logits {
		if v == negInf {
			t.Fatalf("top_k=0 must disable the filter")
		}
	}
}

func TestApplyTopP_KeepsSmallestSufficientPrefix(t *testing.T) {
	logits := []float32{10, 0, 0, 0} // softmax concentrates almost all mass on idx 0
	applyTopP(logits, 0.5)
	if logits[0] == negInf {
		t.Fatalf("top-p must keep the dominant token")
	}
}

func TestApplyMinP_DropsLowProbabilityTokens(t *testing.T) {
	logits := []float32{10, 0, 0, 0}
	applyMinP(logits, 0.5)
	if logits[0] == negInf {
		t.Fatalf("dominant token must survive min-p")
	}
	if logits[1] != negInf {
		t.Fatalf("low probability token must be dropped by min-p")
	}
}

func TestConfig_ValidateRejectsOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for out-of-range temperature")
	}
}

func TestSampler_PenaltyWindowEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepetitionWindow = 2
	cfg.RepetitionPenalty = 2.0
	s, err := New(cfg, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.observe(1)
	s.observe(2)
	s.observe(3) // evicts 1
	if _, ok := s.counts[1]; ok {
		t.Errorf("expected token 1 to be evicted from the window")
	}
	if s.counts[2] != 1 || s.counts[3] != 1 {
		t.Errorf("expected tokens 2 and 3 to remain in the window")
	}
}
