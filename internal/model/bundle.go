package model

import "fmt"

// Layer holds one transformer block's weights, named by architectural
// role exactly as §3's ModelBundle enumerates them.
type Layer struct {
	AttnNormGamma, AttnNormBeta []float32 // [EmbedDim]
	FFNNormGamma, FFNNormBeta  []float32 // [EmbedDim]

	Query  WeightMatrix // [EmbedDim, EmbedDim]
	Key    WeightMatrix // [KVHeads*HeadDim, EmbedDim]
	Value  WeightMatrix // [KVHeads*HeadDim, EmbedDim]
	Output WeightMatrix // [EmbedDim, EmbedDim]

	MLPGate WeightMatrix // [MLPDim, EmbedDim]
	MLPUp   WeightMatrix // [MLPDim, EmbedDim]
	MLPDown WeightMatrix // [EmbedDim, MLPDim]
}

// Bundle is the read-only, immutable-for-the-engine's-lifetime weight
// collection §3 calls ModelBundle. It is safe to share across sessions
// without synchronization: nothing in it is ever mutated after load.
type Bundle struct {
	Params HyperParams

	TokenEmbedding []float32 // [VocabSize, EmbedDim]
	Layers         []Layer

	FinalNormGamma, FinalNormBeta []float32 // [EmbedDim]
	LMHead                        WeightMatrix // [VocabSize, EmbedDim]
}

// Validate checks shape consistency across every weight in the bundle
// against Params, so a malformed loader output fails fast at engine
// construction (ModelLoadFailed) rather than mid-forward-pass.
func (b *Bundle) Validate() error {
	if err := b.Params.Validate(); err != nil {
		return err
	}
	p := b.Params
	if len(b.TokenEmbedding) != p.VocabSize*p.EmbedDim {
		return fmt.Errorf("model: bundle: token embedding has %d elements, want vocab*embed=%d*%d",
			len(b.TokenEmbedding), p.VocabSize, p.EmbedDim)
	}
	if len(b.Layers) != p.Layers {
		return fmt.Errorf("model: bundle: have %d layers, want %d", len(b.Layers), p.Layers)
	}
	kvDim := p.KVHeads * p.HeadDim
	for i, l := range b.Layers {
		if len(l.AttnNormGamma) != p.EmbedDim || len(l.AttnNormBeta) != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d attn norm params have wrong length", i)
		}
		if len(l.FFNNormGamma) != p.EmbedDim || len(l.FFNNormBeta) != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d ffn norm params have wrong length", i)
		}
		if l.Query.Rows() != p.EmbedDim || l.Query.Cols() != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d query weight shape mismatch", i)
		}
		if l.Key.Rows() != kvDim || l.Key.Cols() != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d key weight shape mismatch", i)
		}
		if l.Value.Rows() != kvDim || l.Value.Cols() != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d value weight shape mismatch", i)
		}
		if l.Output.Rows() != p.EmbedDim || l.Output.Cols() != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d output weight shape mismatch", i)
		}
		if l.MLPGate.Rows() != p.MLPDim || l.MLPGate.Cols() != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d mlp_gate weight shape mismatch", i)
		}
		if l.MLPUp.Rows() != p.MLPDim || l.MLPUp.Cols() != p.EmbedDim {
			return fmt.Errorf("model: bundle: layer %d mlp_up weight shape mismatch", i)
		}
		if l.MLPDown.Rows() != p.EmbedDim || l.MLPDown.Cols() != p.MLPDim {
			return fmt.Errorf("model: bundle: layer %d mlp_down weight shape mismatch", i)
		}
	}
	if len(b.FinalNormGamma) != p.EmbedDim || len(b.FinalNormBeta) != p.EmbedDim {
		return fmt.Errorf("model: bundle: final norm params have wrong length")
	}
	if b.LMHead.Rows() != p.VocabSize || b.LMHead.Cols() != p.EmbedDim {
		return fmt.Errorf("model: bundle: lm_head weight shape mismatch")
	}
	return nil
}

// EmbedToken copies the embedding row for id into out (len >= EmbedDim).
func (b *Bundle) EmbedToken(id int, out []float32) error {
	if id < 0 || id >= b.Params.VocabSize {
		return fmt.Errorf("model: embed_token: id %d out of range [0,%d)", id, b.Params.VocabSize)
	}
	d := b.Params.EmbedDim
	copy(out[:d], b.TokenEmbedding[id*d:(id+1)*d])
	return nil
}
