package session

import (
	"context"
	"time"

	"github.com/tinyforge/llminfer/internal/errs"
	"github.com/tinyforge/llminfer/internal/kernel"
	"github.com/tinyforge/llminfer/internal/kvcache"
	"github.com/tinyforge/llminfer/internal/model"
	"github.com/tinyforge/llminfer/internal/sampler"
	"github.com/tinyforge/llminfer/internal/tensor"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

// maxStopSequenceBytes bounds an individual stop sequence per §6.
const maxStopSequenceBytes = 64

// Session owns one request's (or one pinned SessionId's sequence of
// requests') generation state. Not safe for concurrent use: the host
// uses one session per logical thread or serializes access (§4.8).
type Session struct {
	ID    kvcache.SessionID
	phase model.SessionPhase

	bundle *model.Bundle
	tok    tokenizer.Tokenizer
	store  *kvcache.Store
	pool   *kernel.Pool
	arena  *tensor.SubArena
}

// New creates a Session bound to a SessionId; its KV entry is created
// lazily on the first GenerateStream call (§3 "Lifecycles").
func New(id kvcache.SessionID, bundle *model.Bundle, tok tokenizer.Tokenizer, store *kvcache.Store, pool *kernel.Pool, arena *tensor.SubArena) *Session {
	return &Session{ID: id, phase: model.Fresh, bundle: bundle, tok: tok, store: store, pool: pool, arena: arena}
}

// Phase reports the session's current state-machine phase.
func (s *Session) Phase() model.SessionPhase { return s.phase }

// GenerateStream validates req and, on success, returns an ordered
// channel of TokenEvent values terminated by exactly one Completed or
// Error event (§3/§4.8). Validation failures and ContextOverflow are
// returned synchronously, before any KV mutation, per §7.
func (s *Session) GenerateStream(ctx context.Context, req Request) (<-chan TokenEvent, error) {
	if req.MaxNewTokens < 1 {
		return nil, errs.Newf(errs.InvalidOptions, "max_new_tokens must be >= 1, got %d", req.MaxNewTokens)
	}
	for _, stop := range req.StopSequences {
		if len(stop) == 0 || len(stop) > maxStopSequenceBytes {
			return nil, errs.Newf(errs.InvalidOptions, "stop sequence must be 1-%d bytes, got %d", maxStopSequenceBytes, len(stop))
		}
	}
	if err := req.Sampler.Validate(); err != nil {
		return nil, err
	}

	promptTokens := req.PromptTokens
	if promptTokens == nil {
		promptTokens = s.tok.Encode(req.PromptText)
	}

	nCtx := s.bundle.Params.NCtx
	if len(promptTokens)+req.MaxNewTokens > nCtx {
		if req.ContextPolicy == nil {
			return nil, errs.Newf(errs.ContextOverflow, "prompt_tokens (%d) + max_new (%d) exceeds n_ctx (%d)", len(promptTokens), req.MaxNewTokens, nCtx)
		}
		applied, err := req.ContextPolicy.Apply([]Turn{{Tokens: promptTokens}}, req.MaxNewTokens, nCtx)
		if err != nil {
			return nil, err
		}
		promptTokens = applied
	}

	p := s.bundle.Params
	shape := kvcache.Shape{Layers: p.Layers, NCtx: p.NCtx, HKV: p.KVHeads, DHead: p.HeadDim}
	entry, err := s.store.GetOrCreate(s.ID, shape)
	if err != nil {
		return nil, err
	}

	ch := make(chan TokenEvent)
	go s.run(ctx, entry, promptTokens, req, ch)
	return ch, nil
}

func (s *Session) run(ctx context.Context, entry *kvcache.Entry, promptTokens []tokenizer.TokenID, req Request, ch chan<- TokenEvent) {
	defer close(ch)
	start := time.Now()

	samp, err := sampler.New(req.Sampler, req.Seed)
	if err != nil {
		ch <- errorEvent(err)
		return
	}

	promptIDs := make([]int, len(promptTokens))
	for i, t := range promptTokens {
		promptIDs[i] = int(t)
	}

	entry.Lock()
	logits, err := model.Forward(ctx, s.pool, s.arena, s.bundle, entry, promptIDs, false)
	entry.Unlock()
	if err != nil {
		ch <- s.terminalForError(ctx, err, Usage{PromptTokens: len(promptTokens)}, start, 0)
		return
	}
	s.phase, _ = model.Advance(s.phase, model.Prefilled)

	stopDet := newStopDetector(req.StopSequences)
	var ttft time.Duration
	ttftSet := false
	completion := 0

	for completion < req.MaxNewTokens {
		select {
		case <-ctx.Done():
			ch <- s.terminalForContextErr(ctx, Usage{PromptTokens: len(promptTokens), CompletionTokens: completion}, start, completion)
			return
		default:
		}

		id := samp.Sample(logits)
		s.phase, _ = model.Advance(s.phase, model.Decoding)

		chunk := s.tok.Decode([]tokenizer.TokenID{tokenizer.TokenID(id)})
		safe, matched := stopDet.Feed(chunk)
		completion++

		if len(safe) > 0 {
			if !ttftSet {
				ttft = time.Since(start)
				ttftSet = true
			}
			ch <- TokenEvent{Kind: EventToken, TokenID: tokenizer.TokenID(id), TextBytes: safe}
		}

		if matched {
			ch <- completedEvent(ReasonStopSequence, Usage{PromptTokens: len(promptTokens), CompletionTokens: completion}, start, ttft, completion)
			s.phase, _ = model.Advance(s.phase, model.Terminated)
			return
		}
		if tokenizer.TokenID(id) == s.tok.EOSID() {
			ch <- completedEvent(ReasonCompleted, Usage{PromptTokens: len(promptTokens), CompletionTokens: completion}, start, ttft, completion)
			s.phase, _ = model.Advance(s.phase, model.Terminated)
			return
		}
		if completion >= req.MaxNewTokens {
			ch <- completedEvent(ReasonLength, Usage{PromptTokens: len(promptTokens), CompletionTokens: completion}, start, ttft, completion)
			s.phase, _ = model.Advance(s.phase, model.Terminated)
			return
		}

		entry.Lock()
		logits, err = model.Forward(ctx, s.pool, s.arena, s.bundle, entry, []int{id}, false)
		entry.Unlock()
		if err != nil {
			ch <- s.terminalForError(ctx, err, Usage{PromptTokens: len(promptTokens), CompletionTokens: completion}, start, completion)
			return
		}
	}
}

func (s *Session) terminalForError(ctx context.Context, err error, usage Usage, start time.Time, completion int) TokenEvent {
	if errs.Is(err, errs.RequestCancelled) {
		return s.terminalForContextErr(ctx, usage, start, completion)
	}
	s.phase, _ = model.Advance(s.phase, model.Terminated)
	return errorEvent(err)
}

func (s *Session) terminalForContextErr(ctx context.Context, usage Usage, start time.Time, completion int) TokenEvent {
	s.phase, _ = model.Advance(s.phase, model.Terminated)
	reason := ReasonCancelled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ReasonTimeout
	}
	return completedEvent(reason, usage, start, 0, completion)
}

func errorEvent(err error) TokenEvent {
	return TokenEvent{Kind: EventError, Reason: ReasonError, Err: err}
}

func completedEvent(reason FinishReason, usage Usage, start time.Time, ttft time.Duration, completion int) TokenEvent {
	total := time.Since(start)
	var tps float64
	if total > 0 {
		tps = float64(completion) / total.Seconds()
	}
	return TokenEvent{
		Kind:   EventCompleted,
		Reason: reason,
		Usage:  usage,
		Timings: Timings{
			TTFTMillis:      float64(ttft.Microseconds()) / 1000,
			TotalMillis:     float64(total.Microseconds()) / 1000,
			TokensPerSecond: tps,
		},
	}
}
