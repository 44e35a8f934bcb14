package engine

import (
	"context"
	"strings"
	"time"

	"github.com/tinyforge/llminfer/internal/errs"
	"github.com/tinyforge/llminfer/internal/kvcache"
	"github.com/tinyforge/llminfer/internal/sampler"
	isession "github.com/tinyforge/llminfer/internal/session"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

// FinishReason mirrors §6's response field of the same name.
type FinishReason int

const (
	ReasonNone FinishReason = iota
	ReasonCompleted
	ReasonStopSequence
	ReasonLength
	ReasonCancelled
	ReasonTimeout
	ReasonError
)

func (r FinishReason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonStopSequence:
		return "stop_sequence"
	case ReasonLength:
		return "length"
	case ReasonCancelled:
		return "cancelled"
	case ReasonTimeout:
		return "timeout"
	case ReasonError:
		return "error"
	default:
		return "none"
	}
}

func fromInternalReason(r isession.FinishReason) FinishReason {
	switch r {
	case isession.ReasonCompleted:
		return ReasonCompleted
	case isession.ReasonStopSequence:
		return ReasonStopSequence
	case isession.ReasonLength:
		return ReasonLength
	case isession.ReasonCancelled:
		return ReasonCancelled
	case isession.ReasonTimeout:
		return ReasonTimeout
	case isession.ReasonError:
		return ReasonError
	default:
		return ReasonNone
	}
}

// Usage reports §6's token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Timings reports §6's wall-clock measurements.
type Timings struct {
	TTFTMillis      float64
	TotalMillis     float64
	TokensPerSecond float64
}

// EventKind distinguishes a TokenEvent's payload.
type EventKind int

const (
	EventToken EventKind = iota
	EventCompleted
	EventError
)

// TokenEvent is one item of a streamed generation (§3/§6).
type TokenEvent struct {
	Kind    EventKind
	Token   string // decoded text for this token, already stop-sequence-safe
	Reason  FinishReason
	Usage   Usage
	Timings Timings
	Err     error
}

// GenerationRequest is the public text-generation request of §6.
type GenerationRequest struct {
	Prompt       string
	PromptTokens []int32 // used instead of Prompt if non-nil

	MaxNewTokens int

	Temperature       float64
	TopP              float64
	TopK              int
	MinP              float64
	RepetitionPenalty float64
	PresencePenalty   float64
	FrequencyPenalty  float64
	RepetitionWindow  int

	StopSequences []string
	Seed          *uint64
}

// GenerationResult is the non-streaming response shape of §6, built by
// draining a stream to completion.
type GenerationResult struct {
	Text    string
	Reason  FinishReason
	Usage   Usage
	Timings Timings
}

// Session is the public handle for one generation session, scoped to a
// SessionId the host may reuse across requests (§3 "Lifecycles").
type Session struct {
	id     kvcache.SessionID
	inner  *isession.Session
	engine *Engine
}

// ID returns this session's SessionId.
func (s *Session) ID() string { return string(s.id) }

func toInternalRequest(req GenerationRequest) isession.Request {
	cfg := sampler.DefaultConfig()
	if req.Temperature != 0 {
		cfg.Temperature = float32(req.Temperature)
	}
	if req.TopP != 0 {
		cfg.TopP = float32(req.TopP)
	}
	cfg.TopK = req.TopK
	cfg.MinP = float32(req.MinP)
	if req.RepetitionPenalty != 0 {
		cfg.RepetitionPenalty = float32(req.RepetitionPenalty)
	}
	cfg.PresencePenalty = float32(req.PresencePenalty)
	cfg.FrequencyPenalty = float32(req.FrequencyPenalty)
	cfg.RepetitionWindow = req.RepetitionWindow

	var promptTokens []tokenizer.TokenID
	if req.PromptTokens != nil {
		promptTokens = make([]tokenizer.TokenID, len(req.PromptTokens))
		for i, t := range req.PromptTokens {
			promptTokens[i] = tokenizer.TokenID(t)
		}
	}

	var seed uint64
	if req.Seed != nil {
		seed = *req.Seed
	}

	return isession.Request{
		PromptText:    req.Prompt,
		PromptTokens:  promptTokens,
		MaxNewTokens:  req.MaxNewTokens,
		StopSequences: req.StopSequences,
		Sampler:       cfg,
		Seed:          seed,
	}
}

// GenerateStream starts a streaming generation and returns an ordered
// channel of TokenEvent terminated by exactly one Completed or Error
// event (§3). Validation and ContextOverflow failures are returned
// synchronously, before any KV mutation (§7). If the engine was
// configured with request_timeout_ms, the stream's deadline is bounded
// by it even if ctx itself carries none; on expiry the terminal event
// carries ReasonTimeout (§4.8).
func (s *Session) GenerateStream(ctx context.Context, req GenerationRequest) (<-chan TokenEvent, error) {
	var cancel context.CancelFunc
	if d := s.engine.cfg.RequestTimeoutMillis; d != nil {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*d)*time.Millisecond)
	}

	ch, err := s.inner.GenerateStream(ctx, toInternalRequest(req))
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}

	out := make(chan TokenEvent)
	go func() {
		defer close(out)
		if cancel != nil {
			defer cancel()
		}
		for ev := range ch {
			out <- TokenEvent{
				Kind:  EventKind(ev.Kind),
				Token: ev.TextBytes,
				Reason: fromInternalReason(ev.Reason),
				Usage: Usage{
					PromptTokens:     ev.Usage.PromptTokens,
					CompletionTokens: ev.Usage.CompletionTokens,
				},
				Timings: Timings{
					TTFTMillis:      ev.Timings.TTFTMillis,
					TotalMillis:     ev.Timings.TotalMillis,
					TokensPerSecond: ev.Timings.TokensPerSecond,
				},
				Err: ev.Err,
			}
		}
	}()
	return out, nil
}

// Generate runs GenerateStream to completion and concatenates the
// emitted text, for hosts that do not need token-by-token delivery.
func (s *Session) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	ch, err := s.GenerateStream(ctx, req)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	var last TokenEvent
	for ev := range ch {
		if ev.Kind == EventToken {
			sb.WriteString(ev.Token)
		}
		last = ev
	}
	if last.Kind == EventError {
		return nil, errs.Wrap(errs.InferenceFailed, "generation failed", last.Err)
	}
	return &GenerationResult{
		Text:    sb.String(),
		Reason:  last.Reason,
		Usage:   last.Usage,
		Timings: last.Timings,
	}, nil
}

// Close detaches this Session from its engine's tracked set. It does
// not evict the KV entry: that is governed by the LRU budget and, if
// pinned, by the engine's sessionpin.Store lease.
func (s *Session) Close() error {
	if s.engine != nil {
		s.engine.removeSession(s.id)
	}
	return nil
}
