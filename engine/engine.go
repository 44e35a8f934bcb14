// Package engine is the library-first public façade (C9): it loads a
// ModelBundle, owns the arena and KV store, reports engine
// capabilities, and mints Sessions. Nothing in internal/ is reachable
// from outside this module; callers only ever see engine's types.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinyforge/llminfer/config"
	"github.com/tinyforge/llminfer/internal/errs"
	"github.com/tinyforge/llminfer/internal/kernel"
	"github.com/tinyforge/llminfer/internal/kvcache"
	"github.com/tinyforge/llminfer/internal/model"
	"github.com/tinyforge/llminfer/internal/modelfile"
	"github.com/tinyforge/llminfer/internal/session"
	"github.com/tinyforge/llminfer/internal/sessionpin"
	"github.com/tinyforge/llminfer/internal/tensor"
	"github.com/tinyforge/llminfer/internal/tokenizer"
	"github.com/tinyforge/llminfer/telemetry"
)

// Capabilities is the capability-query tuple of §6.
type Capabilities struct {
	SupportsStreaming      bool
	SupportsEmbeddings     bool
	MaxModelTokens         int
	AvailableQuantizations []string
}

// Engine owns one loaded model and its shared runtime resources: the
// arena, the KV store, the worker pool and (optionally) a pin store
// and telemetry sink. Safe for concurrent CreateSession/Close calls.
type Engine struct {
	mu     sync.Mutex
	closed bool

	cfg    config.Config
	bundle *model.Bundle
	tok    tokenizer.Tokenizer

	store *kvcache.Store
	pool  *kernel.Pool
	arena *tensor.Arena
	pins  sessionpin.Store

	log *logrus.Logger

	sessions map[kvcache.SessionID]*Session
}

// Load builds an Engine from cfg, delegating model parsing to loader
// (§4.9: "loads a ModelBundle (delegated)"). pins may be nil, in which
// case sessionpin.NewMemory() is used. sink may be nil (telemetry.Nop).
func Load(cfg config.Config, loader modelfile.Loader, pins sessionpin.Store, sink telemetry.Sink) (*Engine, error) {
	bundle, tok, err := loader.Load(cfg.ModelPath)
	if err != nil {
		return nil, errs.Wrap(errs.ModelLoadFailed, fmt.Sprintf("loading %s", cfg.ModelPath), err)
	}
	if err := bundle.Validate(); err != nil {
		return nil, errs.Wrap(errs.ModelLoadFailed, "validating loaded bundle", err)
	}
	if bundle.Params.NCtx < cfg.MaxContextTokens {
		return nil, errs.Newf(errs.UnsupportedModelFormat,
			"model n_ctx (%d) is smaller than configured max_context_tokens (%d)", bundle.Params.NCtx, cfg.MaxContextTokens)
	}

	threads := runtime.NumCPU()
	if cfg.ThreadCount != nil {
		threads = *cfg.ThreadCount
	}

	budget := kvcache.Budget{
		MaxBytesPerSession: cfg.KVMaxBytesPerSession,
		MaxBytesTotal:      cfg.KVMaxBytesTotal,
		MaxSessions:        cfg.KVMaxSessions,
	}
	if !cfg.EnableKVCache {
		// With the KV cache disabled, the store's budgets are lifted so
		// admission and eviction never bind. Sessions still keep and
		// reuse their entry across requests: this switch does not
		// force a fresh prefill.
		budget = kvcache.Budget{MaxBytesPerSession: 1 << 62, MaxBytesTotal: 1 << 62, MaxSessions: 1 << 30}
	}

	if pins == nil {
		pins = sessionpin.NewMemory()
	}

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	e := &Engine{
		cfg:      cfg,
		bundle:   bundle,
		tok:      tok,
		store:    kvcache.NewStore(budget, sink),
		pool:     kernel.NewPool(threads),
		arena:    tensor.NewArena(threads),
		pins:     pins,
		log:      log,
		sessions: make(map[kvcache.SessionID]*Session),
	}
	e.log.WithFields(logrus.Fields{
		"model_path": cfg.ModelPath,
		"layers":     bundle.Params.Layers,
		"n_ctx":      bundle.Params.NCtx,
		"threads":    threads,
	}).Info("engine loaded")
	return e, nil
}

// Capabilities reports the engine's static capability tuple (§6).
func (e *Engine) Capabilities() Capabilities {
	return Capabilities{
		SupportsStreaming:      true,
		SupportsEmbeddings:     false,
		MaxModelTokens:         e.bundle.Params.NCtx,
		AvailableQuantizations: []string{"fp32", "q8_0", "q4_0"},
	}
}

// SessionOptions configures a new Session.
type SessionOptions struct {
	// ID identifies this session's KV entry; if empty, a fresh one is
	// generated from a monotonic internal counter.
	ID string
	// Pin, if true, registers this SessionId with the engine's pin
	// store under PinTTL so it survives past this Session object's
	// lifetime for a follow-up request (§3 "Lifecycles").
	Pin    bool
	PinTTL int64 // seconds; with Pin false, a positive value refreshes an existing pin
}

var nextAnonymousID uint64

// CreateSession validates opts and mints a Session bound to the engine
// (§4.9). Fails with InvalidOptions. When opts.Pin is set, the
// SessionId is leased in e.pins for opts.PinTTL so it survives this
// Session object's lifetime (§3 "Lifecycles"); reusing an explicit,
// still-pinned SessionId without opts.Pin refreshes that lease for
// opts.PinTTL whenever the caller supplies a positive PinTTL.
func (e *Engine) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errs.New(errs.InvalidOptions, "engine is closed")
	}

	id := opts.ID
	if id == "" {
		nextAnonymousID++
		id = fmt.Sprintf("anon-%d", nextAnonymousID)
	}
	sid := kvcache.SessionID(id)
	if _, exists := e.sessions[sid]; exists {
		return nil, errs.Newf(errs.InvalidOptions, "session id %q already in use", id)
	}

	if opts.Pin {
		if opts.PinTTL <= 0 {
			return nil, errs.Newf(errs.InvalidOptions, "pin_ttl must be positive when pin is requested, got %d", opts.PinTTL)
		}
		if err := e.pins.Pin(ctx, sid, time.Duration(opts.PinTTL)*time.Second); err != nil {
			return nil, errs.Wrap(errs.InvalidOptions, "pinning session", err)
		}
	} else if opts.PinTTL > 0 {
		if pinned, err := e.pins.IsPinned(ctx, sid); err == nil && pinned {
			if err := e.pins.Pin(ctx, sid, time.Duration(opts.PinTTL)*time.Second); err != nil {
				return nil, errs.Wrap(errs.InvalidOptions, "refreshing session pin", err)
			}
		}
	}

	worker := len(e.sessions) % e.arena.NumWorkers()
	inner := session.New(sid, e.bundle, e.tok, e.store, e.pool, e.arena.Worker(worker))
	s := &Session{id: sid, inner: inner, engine: e}
	e.sessions[sid] = s
	return s, nil
}

// removeSession detaches a Session from the engine's tracked set,
// called on Session.Close.
func (e *Engine) removeSession(id kvcache.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

// Close tears the engine down in the order §4.9 requires: sessions,
// then the KV store, then the arena, then the model bundle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for id := range e.sessions {
		delete(e.sessions, id)
	}
	e.store = nil
	e.arena = nil
	e.bundle = nil
	e.log.Info("engine closed")
	return nil
}
