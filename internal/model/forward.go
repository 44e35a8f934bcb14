package model

import (
	"context"

	"github.com/tinyforge/llminfer/internal/errs"
	"github.com/tinyforge/llminfer/internal/kernel"
	"github.com/tinyforge/llminfer/internal/kvcache"
	"github.com/tinyforge/llminfer/internal/tensor"
)

// Forward runs the §4.4 per-layer recipe over tokenIDs against entry,
// which holds T_filled past positions. On success entry.Filled is
// advanced by len(tokenIDs) and the returned logits cover either just
// the last new position ([V]) or every new position ([len(tokenIDs), V])
// depending on allLogits. All scratch activations are rented from
// arena and released before Forward returns, so a steady-state decode
// step (tNew == 1) allocates nothing beyond the fresh-per-call logits
// slice that must outlive this call. ctx is checked
// at the start of every layer (the "before every layer's forward step
// in prefill" cancellation point of §5): a cancelled context aborts
// before any KV mutation for the remaining layers.
func Forward(ctx context.Context, pool *kernel.Pool, arena *tensor.SubArena, bundle *Bundle, entry *kvcache.Entry, tokenIDs []int, allLogits bool) ([]float32, error) {
	p := bundle.Params
	tNew := len(tokenIDs)
	if tNew == 0 {
		return nil, errs.New(errs.ProgrammerError, "forward: empty token batch")
	}
	basePos := entry.Filled
	if basePos+tNew > entry.Shape.NCtx {
		return nil, errs.Newf(errs.ContextOverflow, "forward: %d filled + %d new exceeds n_ctx %d", basePos, tNew, entry.Shape.NCtx)
	}

	d := p.EmbedDim
	kvDim := p.KVHeads * p.HeadDim

	xT, err := rent1D(arena, tNew*d)
	if err != nil {
		return nil, errs.Wrap(errs.InferenceFailed, "forward: rent residual stream", err)
	}
	defer arena.Release(xT, false)
	x := xT.Floats

	for i, id := range tokenIDs {
		if err := bundle.EmbedToken(id, x[i*d:(i+1)*d]); err != nil {
			return nil, errs.Wrap(errs.InferenceFailed, "forward: embed token", err)
		}
	}

	for l := range bundle.Layers {
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.RequestCancelled, "forward: cancelled before layer", ctx.Err())
		default:
		}
		if err := forwardLayer(pool, arena, &bundle.Layers[l], p, entry, l, x, basePos, tNew, kvDim); err != nil {
			return nil, err
		}
	}

	finalNormT, err := rent1D(arena, tNew*d)
	if err != nil {
		return nil, errs.Wrap(errs.InferenceFailed, "forward: rent final norm", err)
	}
	defer arena.Release(finalNormT, false)
	finalNorm := finalNormT.Floats
	if err := kernel.LayerNorm(x, bundle.FinalNormGamma, bundle.FinalNormBeta, finalNorm, tNew, d, p.NormEps); err != nil {
		return nil, errs.Wrap(errs.InferenceFailed, "forward: final layernorm", err)
	}

	var logits []float32
	if allLogits {
		logits = make([]float32, tNew*p.VocabSize)
		if err := bundle.LMHead.Matmul(pool, finalNorm, logits, tNew); err != nil {
			return nil, errs.Wrap(errs.InferenceFailed, "forward: lm head", err)
		}
	} else {
		lastRow := finalNorm[(tNew-1)*d : tNew*d]
		logits = make([]float32, p.VocabSize)
		if err := bundle.LMHead.Matmul(pool, lastRow, logits, 1); err != nil {
			return nil, errs.Wrap(errs.InferenceFailed, "forward: lm head", err)
		}
	}

	entry.Filled = basePos + tNew
	return logits, nil
}

// rent1D rents a flat n-element FP32 scratch tensor from arena.
func rent1D(arena *tensor.SubArena, n int) (tensor.Tensor, error) {
	return arena.Rent(tensor.Shape{n, 0, 0, 0}, 1)
}

func forwardLayer(pool *kernel.Pool, arena *tensor.SubArena, layer *Layer, p HyperParams, entry *kvcache.Entry, l int, x []float32, basePos, tNew, kvDim int) error {
	d := p.EmbedDim

	xNormT, err := rent1D(arena, tNew*d)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent attn norm scratch", err)
	}
	defer arena.Release(xNormT, false)
	xNorm := xNormT.Floats
	if err := kernel.LayerNorm(x, layer.AttnNormGamma, layer.AttnNormBeta, xNorm, tNew, d, p.NormEps); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: attn layernorm", err)
	}

	qT, err := rent1D(arena, tNew*d)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent q", err)
	}
	defer arena.Release(qT, false)
	q := qT.Floats
	if err := layer.Query.Matmul(pool, xNorm, q, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: query projection", err)
	}

	kT, err := rent1D(arena, tNew*kvDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent k", err)
	}
	defer arena.Release(kT, false)
	k := kT.Floats
	if err := layer.Key.Matmul(pool, xNorm, k, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: key projection", err)
	}

	vT, err := rent1D(arena, tNew*kvDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent v", err)
	}
	defer arena.Release(vT, false)
	v := vT.Floats
	if err := layer.Value.Matmul(pool, xNorm, v, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: value projection", err)
	}

	for i := 0; i < tNew; i++ {
		absPos := basePos + i
		if err := kernel.RoPE(q[i*d:(i+1)*d], p.Heads, p.HeadDim, absPos, p.RopeBase); err != nil {
			return errs.Wrap(errs.InferenceFailed, "forward: rope(q)", err)
		}
		if err := kernel.RoPE(k[i*kvDim:(i+1)*kvDim], p.KVHeads, p.HeadDim, absPos, p.RopeBase); err != nil {
			return errs.Wrap(errs.InferenceFailed, "forward: rope(k)", err)
		}
	}

	cacheK, cacheV := entry.LayerKV(l)
	copy(cacheK[basePos*kvDim:(basePos+tNew)*kvDim], k)
	copy(cacheV[basePos*kvDim:(basePos+tNew)*kvDim], v)

	tk := basePos + tNew
	attnOutT, err := rent1D(arena, tNew*d)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent attn out", err)
	}
	defer arena.Release(attnOutT, false)
	attnOut := attnOutT.Floats

	for h := 0; h < p.Heads; h++ {
		if err := attendHead(pool, arena, p, entry, cacheK, cacheV, q, attnOut, h, tNew, tk, d, kvDim); err != nil {
			return err
		}
	}

	outProjT, err := rent1D(arena, tNew*d)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent out proj", err)
	}
	defer arena.Release(outProjT, false)
	outProj := outProjT.Floats
	if err := layer.Output.Matmul(pool, attnOut, outProj, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: output projection", err)
	}
	if err := kernel.Residual(x, outProj); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: attn residual", err)
	}

	xNorm2T, err := rent1D(arena, tNew*d)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent ffn norm scratch", err)
	}
	defer arena.Release(xNorm2T, false)
	xNorm2 := xNorm2T.Floats
	if err := kernel.LayerNorm(x, layer.FFNNormGamma, layer.FFNNormBeta, xNorm2, tNew, d, p.NormEps); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: ffn layernorm", err)
	}

	gateOutT, err := rent1D(arena, tNew*p.MLPDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent mlp gate", err)
	}
	defer arena.Release(gateOutT, false)
	gateOut := gateOutT.Floats
	if err := layer.MLPGate.Matmul(pool, xNorm2, gateOut, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: mlp gate", err)
	}

	upOutT, err := rent1D(arena, tNew*p.MLPDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent mlp up", err)
	}
	defer arena.Release(upOutT, false)
	upOut := upOutT.Floats
	if err := layer.MLPUp.Matmul(pool, xNorm2, upOut, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: mlp up", err)
	}

	kernel.GatedMLP(gateOut, upOut)

	mlpOutT, err := rent1D(arena, tNew*d)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent mlp down", err)
	}
	defer arena.Release(mlpOutT, false)
	mlpOut := mlpOutT.Floats
	if err := layer.MLPDown.Matmul(pool, gateOut, mlpOut, tNew); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: mlp down", err)
	}
	if err := kernel.Residual(x, mlpOut); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: mlp residual", err)
	}
	return nil
}

// attendHead runs one query head's scoring, softmax and context
// reduction. Q/K/V are stored one position per row with all heads
// interleaved in the row ([rows, heads*dHead]); since attention needs
// one head's positions contiguous, the head's column slice is gathered
// into scratch first and the resulting context scattered back.
func attendHead(pool *kernel.Pool, arena *tensor.SubArena, p HyperParams, entry *kvcache.Entry, cacheK, cacheV, q, attnOut []float32, h, tNew, tk, d, kvDim int) error {
	kvHead := p.KVGroupHead(h)

	qHeadT, err := rent1D(arena, tNew*p.HeadDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent q head", err)
	}
	defer arena.Release(qHeadT, false)
	gatherHeadInto(qHeadT.Floats, q, tNew, d, h, p.HeadDim)

	kHeadT, err := rent1D(arena, tk*p.HeadDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent k head", err)
	}
	defer arena.Release(kHeadT, false)
	gatherHeadInto(kHeadT.Floats, cacheK, tk, kvDim, kvHead, p.HeadDim)

	vHeadT, err := rent1D(arena, tk*p.HeadDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent v head", err)
	}
	defer arena.Release(vHeadT, false)
	gatherHeadInto(vHeadT.Floats, cacheV, tk, kvDim, kvHead, p.HeadDim)

	scoresT, err := rent1D(arena, tNew*tk)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent scores", err)
	}
	defer arena.Release(scoresT, false)
	scores := scoresT.Floats
	if err := kernel.AttentionScores(pool, qHeadT.Floats, kHeadT.Floats, scores, tNew, tk, p.HeadDim); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: attention scores", err)
	}
	if err := kernel.Softmax(scores, tNew, tk); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: softmax", err)
	}

	ctxHeadT, err := rent1D(arena, tNew*p.HeadDim)
	if err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: rent context head", err)
	}
	defer arena.Release(ctxHeadT, false)
	if err := kernel.ContextFromScores(pool, scores, vHeadT.Floats, ctxHeadT.Floats, tNew, tk, p.HeadDim); err != nil {
		return errs.Wrap(errs.InferenceFailed, "forward: attention context", err)
	}
	scatterHeadFrom(attnOut, ctxHeadT.Floats, tNew, d, h, p.HeadDim)
	return nil
}

// gatherHeadInto copies head h's dHead-wide column slice out of a
// [rows, stride] row-major buffer into a contiguous [rows, dHead] dst.
func gatherHeadInto(dst, buf []float32, rows, stride, head, dHead int) {
	off := head * dHead
	for r := 0; r < rows; r++ {
		copy(dst[r*dHead:(r+1)*dHead], buf[r*stride+off:r*stride+off+dHead])
	}
}

// scatterHeadFrom is gatherHeadInto's inverse: writes a contiguous
// [rows, dHead] head context back into its column slice of the
// [rows, stride] attnOut buffer.
func scatterHeadFrom(buf, headData []float32, rows, stride, head, dHead int) {
	off := head * dHead
	for r := 0; r < rows; r++ {
		copy(buf[r*stride+off:r*stride+off+dHead], headData[r*dHead:(r+1)*dHead])
	}
}
