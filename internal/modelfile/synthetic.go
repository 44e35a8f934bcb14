package modelfile

import (
	"math/rand"

	"github.com/tinyforge/llminfer/internal/errs"
	"github.com/tinyforge/llminfer/internal/model"
	"github.com/tinyforge/llminfer/internal/quant"
	"github.com/tinyforge/llminfer/internal/tensor"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

// SyntheticSpec configures a generated test/dev bundle. It mirrors the
// subset of model.HyperParams a loader would otherwise read from a
// real GGUF-family file.
type SyntheticSpec struct {
	EmbedDim  int
	Layers    int
	Heads     int
	KVHeads   int
	MLPDim    int
	NCtx      int
	VocabSize int
	Scheme    tensor.Scheme // FP32, Q8_0 or Q4_0; weight matrices use this scheme
	Seed      int64
}

// DefaultSyntheticSpec returns a small but architecturally complete
// configuration, enough to exercise GQA (Heads=4, KVHeads=2) and every
// weight role without costing much memory in tests.
func DefaultSyntheticSpec() SyntheticSpec {
	return SyntheticSpec{
		EmbedDim: 32, Layers: 2, Heads: 4, KVHeads: 2, MLPDim: 64,
		NCtx: 256, VocabSize: 256 + 2, Scheme: tensor.Q8_0, Seed: 1,
	}
}

// Synthetic is a Loader that ignores its path argument entirely and
// returns a freshly generated bundle from Spec; useful for tests and
// the CLI demo harness where no real model file is available.
type Synthetic struct {
	Spec SyntheticSpec
}

// NewSynthetic creates a Synthetic loader with the given spec.
func NewSynthetic(spec SyntheticSpec) *Synthetic {
	return &Synthetic{Spec: spec}
}

func (s *Synthetic) Load(_ string) (*model.Bundle, tokenizer.Tokenizer, error) {
	spec := s.Spec
	if spec.HeadDim() <= 0 {
		return nil, nil, errs.New(errs.ModelLoadFailed, "synthetic: embed_dim must be a multiple of heads")
	}
	rng := rand.New(rand.NewSource(spec.Seed))

	p := model.HyperParams{
		EmbedDim: spec.EmbedDim, Layers: spec.Layers, Heads: spec.Heads, KVHeads: spec.KVHeads,
		HeadDim: spec.HeadDim(), MLPDim: spec.MLPDim, NCtx: spec.NCtx, RopeBase: 10000,
		VocabSize: spec.VocabSize, NormEps: 1e-5,
	}

	bundle := &model.Bundle{Params: p}
	bundle.TokenEmbedding = randomMatrix(rng, spec.VocabSize, spec.EmbedDim)

	kvDim := spec.KVHeads * spec.HeadDim()
	for l := 0; l < spec.Layers; l++ {
		layer := model.Layer{
			AttnNormGamma: onesVec(spec.EmbedDim), AttnNormBeta: zerosVec(spec.EmbedDim),
			FFNNormGamma: onesVec(spec.EmbedDim), FFNNormBeta: zerosVec(spec.EmbedDim),
		}
		var err error
		if layer.Query, err = weightOf(rng, spec.Scheme, spec.EmbedDim, spec.EmbedDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: query weight", err)
		}
		if layer.Key, err = weightOf(rng, spec.Scheme, kvDim, spec.EmbedDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: key weight", err)
		}
		if layer.Value, err = weightOf(rng, spec.Scheme, kvDim, spec.EmbedDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: value weight", err)
		}
		if layer.Output, err = weightOf(rng, spec.Scheme, spec.EmbedDim, spec.EmbedDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: output weight", err)
		}
		if layer.MLPGate, err = weightOf(rng, spec.Scheme, spec.MLPDim, spec.EmbedDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: mlp_gate weight", err)
		}
		if layer.MLPUp, err = weightOf(rng, spec.Scheme, spec.MLPDim, spec.EmbedDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: mlp_up weight", err)
		}
		if layer.MLPDown, err = weightOf(rng, spec.Scheme, spec.EmbedDim, spec.MLPDim); err != nil {
			return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: mlp_down weight", err)
		}
		bundle.Layers = append(bundle.Layers, layer)
	}

	bundle.FinalNormGamma, bundle.FinalNormBeta = onesVec(spec.EmbedDim), zerosVec(spec.EmbedDim)
	lmHead, err := weightOf(rng, spec.Scheme, spec.VocabSize, spec.EmbedDim)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: lm_head weight", err)
	}
	bundle.LMHead = lmHead

	if err := bundle.Validate(); err != nil {
		return nil, nil, errs.Wrap(errs.ModelLoadFailed, "synthetic: generated bundle failed validation", err)
	}

	tok := tokenizer.NewByteLevel()
	return bundle, tok, nil
}

// HeadDim derives d_h = d/H, or 0 if it does not divide evenly.
func (s SyntheticSpec) HeadDim() int {
	if s.Heads == 0 || s.EmbedDim%s.Heads != 0 {
		return 0
	}
	return s.EmbedDim / s.Heads
}

func weightOf(rng *rand.Rand, scheme tensor.Scheme, rows, cols int) (model.WeightMatrix, error) {
	dense := randomMatrix(rng, rows, cols)
	if scheme == tensor.FP32 {
		return model.NewDenseWeight(rows, cols, dense)
	}
	qw, err := quant.NewWeight(scheme, rows, cols, dense)
	if err != nil {
		return nil, err
	}
	return model.NewQuantWeight(qw), nil
}

func randomMatrix(rng *rand.Rand, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for i := range out {
		out[i] = float32(rng.NormFloat64()) * 0.02
	}
	return out
}

func onesVec(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func zerosVec(n int) []float32 { return make([]float32, n) }
