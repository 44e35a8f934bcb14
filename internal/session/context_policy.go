package session

import (
	"github.com/tinyforge/llminfer/internal/errs"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

// Turn is one message in a prompt's turn history; Pinned marks
// messages KeepLastNTurns must never drop (system messages).
type Turn struct {
	Tokens []tokenizer.TokenID
	Pinned bool
}

// ContextPolicy implements §4.8's context-window policies: given the
// prompt's turns and a token budget, it returns the surviving flat
// token sequence or a ContextOverflow error (property P11: applying a
// policy twice to the same input yields the same surviving prompt,
// which holds here because Apply is a pure function of its inputs).
type ContextPolicy interface {
	Apply(turns []Turn, maxNew, nCtx int) ([]tokenizer.TokenID, error)
}

// KeepLastNTurns deterministically drops oldest non-pinned turns until
// the budget fits or only pinned turns remain, in which case it fails
// with ContextOverflow.
type KeepLastNTurns struct {
	N int
}

func (p KeepLastNTurns) Apply(turns []Turn, maxNew, nCtx int) ([]tokenizer.TokenID, error) {
	budget := nCtx - maxNew
	if budget <= 0 {
		return nil, errs.Newf(errs.ContextOverflow, "context policy: max_new (%d) alone exceeds n_ctx (%d)", maxNew, nCtx)
	}

	var pinned, movable []Turn
	for _, t := range turns {
		if t.Pinned {
			pinned = append(pinned, t)
		} else {
			movable = append(movable, t)
		}
	}
	if p.N >= 0 && len(movable) > p.N {
		movable = movable[len(movable)-p.N:]
	}

	for {
		total := sumTokens(pinned) + sumTokens(movable)
		if total <= budget {
			break
		}
		if len(movable) == 0 {
			return nil, errs.Newf(errs.ContextOverflow, "context policy: prompt still exceeds budget %d after dropping all non-pinned turns", budget)
		}
		movable = movable[1:]
	}

	out := make([]tokenizer.TokenID, 0, sumTokens(pinned)+sumTokens(movable))
	for _, t := range pinned {
		out = append(out, t.Tokens...)
	}
	for _, t := range movable {
		out = append(out, t.Tokens...)
	}
	return out, nil
}

// SlidingWindow drops the oldest tokens, ignoring turn boundaries,
// until prompt_tokens <= N_ctx - max_new.
type SlidingWindow struct{}

func (SlidingWindow) Apply(turns []Turn, maxNew, nCtx int) ([]tokenizer.TokenID, error) {
	budget := nCtx - maxNew
	if budget <= 0 {
		return nil, errs.Newf(errs.ContextOverflow, "context policy: max_new (%d) alone exceeds n_ctx (%d)", maxNew, nCtx)
	}
	var flat []tokenizer.TokenID
	for _, t := range turns {
		flat = append(flat, t.Tokens...)
	}
	if len(flat) <= budget {
		return flat, nil
	}
	return flat[len(flat)-budget:], nil
}

func sumTokens(turns []Turn) int {
	n := 0
	for _, t := range turns {
		n += len(t.Tokens)
	}
	return n
}
