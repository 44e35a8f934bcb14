// Package session implements the §4.8 per-request state machine:
// prefill, the decode loop, stop-sequence detection, streaming token
// events, cooperative cancellation and timing.
package session

import (
	"github.com/tinyforge/llminfer/internal/sampler"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

// FinishReason is the terminal condition of a generation, matching the
// response fields of §6.
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

// Usage reports the token accounting of §6.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Timings reports the wall-clock measurements of §6/§4.8.
type Timings struct {
	TTFTMillis      float64
	TotalMillis     float64
	TokensPerSecond float64
}

// EventKind distinguishes a TokenEvent's payload, matching §3's
// Token/Completed/Error variant.
type EventKind int

const (
	EventToken EventKind = iota
	EventCompleted
	EventError
)

// TokenEvent is one item of the streamed generation sequence. Exactly
// one Completed or Error event terminates the stream; Token events
// never follow it (P10).
type TokenEvent struct {
	Kind EventKind

	TokenID   tokenizer.TokenID
	TextBytes string

	Reason  FinishReason
	Usage   Usage
	Timings Timings

	Err error
}

// Request is the internal generation request; the engine façade
// translates its public GenerationRequest into this shape.
type Request struct {
	PromptText    string
	PromptTokens  []tokenizer.TokenID // used instead of PromptText if non-nil
	MaxNewTokens  int
	StopSequences []string
	Sampler       sampler.Config
	Seed          uint64
	ContextPolicy ContextPolicy // nil means no policy applied (caller asserts prompt fits)
}
