package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tinyforge/llminfer/internal/kernel"
	"github.com/tinyforge/llminfer/internal/kvcache"
	"github.com/tinyforge/llminfer/internal/modelfile"
	"github.com/tinyforge/llminfer/internal/sampler"
	"github.com/tinyforge/llminfer/internal/tensor"
	"github.com/tinyforge/llminfer/internal/tokenizer"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	loader := modelfile.NewSynthetic(modelfile.DefaultSyntheticSpec())
	bundle, tok, err := loader.Load("ignored")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	store := kvcache.NewStore(kvcache.Budget{MaxBytesPerSession: 1 << 30, MaxBytesTotal: 1 << 30, MaxSessions: 10}, nil)
	pool := kernel.NewPool(2)
	arena := tensor.NewArena(1).Worker(0)
	return New("sess-1", bundle, tok, store, pool, arena)
}

func drain(ch <-chan TokenEvent) []TokenEvent {
	var out []TokenEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestGenerateStream_CompletesWithLengthReason(t *testing.T) {
	s := newTestSession(t)
	cfg := sampler.DefaultConfig()
	cfg.Temperature = sampler.GreedyThreshold
	req := Request{PromptText: "hi", MaxNewTokens: 5, Sampler: cfg, Seed: 1}

	ch, err := s.GenerateStream(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	events := drain(ch)
	if len(events) == 0 {
		t.Fatalf("expected at least one event")
	}
	last := events[len(events)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected terminal Completed event, got kind %v", last.Kind)
	}
	if last.Reason != ReasonLength && last.Reason != ReasonCompleted {
		t.Fatalf("expected Length or Completed reason, got %v", last.Reason)
	}
	if last.Usage.PromptTokens != 2 {
		t.Errorf("expected 2 prompt tokens for \"hi\", got %d", last.Usage.PromptTokens)
	}
}

func TestGenerateStream_RejectsInvalidSamplerConfigSynchronously(t *testing.T) {
	s := newTestSession(t)
	cfg := sampler.DefaultConfig()
	cfg.Temperature = 5 // out of [0,2]
	req := Request{PromptText: "hi", MaxNewTokens: 5, Sampler: cfg, Seed: 1}

	if _, err := s.GenerateStream(context.Background(), req); err == nil {
		t.Fatalf("expected synchronous validation error")
	}
}

func TestGenerateStream_ContextOverflowBeforeKVMutation(t *testing.T) {
	s := newTestSession(t)
	long := strings.Repeat("x", s.bundle.Params.NCtx*2)
	cfg := sampler.DefaultConfig()
	req := Request{PromptText: long, MaxNewTokens: 5, Sampler: cfg, Seed: 1}

	if _, err := s.GenerateStream(context.Background(), req); err == nil {
		t.Fatalf("expected context overflow error")
	}
	if s.store.LiveSessions() != 0 {
		t.Fatalf("expected no KV entry created on overflow rejection")
	}
}

func TestGenerateStream_CancellationStopsStream(t *testing.T) {
	s := newTestSession(t)
	cfg := sampler.DefaultConfig()
	cfg.Temperature = sampler.GreedyThreshold
	req := Request{PromptText: "hi", MaxNewTokens: 200, Sampler: cfg, Seed: 1}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.GenerateStream(ctx, req)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	// Let prefill happen, then cancel before decode can run away.
	cancel()

	events := drain(ch)
	if len(events) == 0 {
		t.Fatalf("expected at least the terminal event")
	}
	last := events[len(events)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected terminal Completed event on cancellation, got kind %v", last.Kind)
	}
	if last.Reason != ReasonCancelled && last.Reason != ReasonLength && last.Reason != ReasonCompleted {
		t.Fatalf("unexpected reason on cancellation: %v", last.Reason)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != EventToken {
			t.Fatalf("P10: no non-token event may precede the terminal event")
		}
	}
}

func TestGenerateStream_TimeoutProducesTimeoutReason(t *testing.T) {
	s := newTestSession(t)
	cfg := sampler.DefaultConfig()
	cfg.Temperature = sampler.GreedyThreshold
	req := Request{PromptText: "hi", MaxNewTokens: 200, Sampler: cfg, Seed: 1}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	ch, err := s.GenerateStream(ctx, req)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	events := drain(ch)
	last := events[len(events)-1]
	if last.Kind != EventCompleted || last.Reason != ReasonTimeout {
		t.Fatalf("expected Completed/Timeout, got kind=%v reason=%v", last.Kind, last.Reason)
	}
}

func TestKeepLastNTurns_Idempotent(t *testing.T) {
	policy := KeepLastNTurns{N: 1}
	turns := []Turn{
		{Tokens: mockTokens(5), Pinned: true},
		{Tokens: mockTokens(50)},
		{Tokens: mockTokens(50)},
	}
	out1, err := policy.Apply(turns, 10, 64)
	if err != nil {
		t.Fatalf("apply 1: %v", err)
	}
	out2, err := policy.Apply(turns, 10, 64)
	if err != nil {
		t.Fatalf("apply 2: %v", err)
	}
	if len(out1) != len(out2) {
		t.Fatalf("P11: repeated application must yield the same result")
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("P11 violated at index %d", i)
		}
	}
}

func TestSlidingWindow_KeepsNewestTokens(t *testing.T) {
	policy := SlidingWindow{}
	turns := []Turn{{Tokens: mockTokens(100)}}
	out, err := policy.Apply(turns, 10, 50)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 40 {
		t.Fatalf("expected 40 surviving tokens (50-10 budget), got %d", len(out))
	}
	if out[0] != turns[0].Tokens[60] {
		t.Fatalf("expected the tail of the original sequence to survive")
	}
}

func mockTokens(n int) []tokenizer.TokenID {
	out := make([]tokenizer.TokenID, n)
	for i := range out {
		out[i] = tokenizer.TokenID(i)
	}
	return out
}
