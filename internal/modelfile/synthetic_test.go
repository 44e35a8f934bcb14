package modelfile

import "testing"

func TestSynthetic_LoadProducesValidBundle(t *testing.T) {
	loader := NewSynthetic(DefaultSyntheticSpec())
	bundle, tok, err := loader.Load("ignored-path")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := bundle.Validate(); err != nil {
		t.Fatalf("generated bundle invalid: %v", err)
	}
	if tok.VocabSize() == 0 {
		t.Fatalf("expected a non-empty tokenizer")
	}
}

func TestSynthetic_RejectsEmbedDimNotDivisibleByHeads(t *testing.T) {
	spec := DefaultSyntheticSpec()
	spec.EmbedDim = 33 // not divisible by Heads=4
	loader := NewSynthetic(spec)
	if _, _, err := loader.Load("x"); err == nil {
		t.Fatalf("expected load to fail for inconsistent head_dim")
	}
}

func TestSynthetic_DeterministicForFixedSeed(t *testing.T) {
	spec := DefaultSyntheticSpec()
	l1 := NewSynthetic(spec)
	l2 := NewSynthetic(spec)
	b1, _, err := l1.Load("x")
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	b2, _, err := l2.Load("x")
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	for i := range b1.TokenEmbedding {
		if b1.TokenEmbedding[i] != b2.TokenEmbedding[i] {
			t.Fatalf("expected identical embeddings for the same seed at index %d", i)
		}
	}
}
