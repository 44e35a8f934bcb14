// Package sessionpin records which SessionIds a host has asked to keep
// alive past the lifetime of any single request (§3 "Lifecycles": "may
// outlive the session object if the host preserves the SessionId for a
// follow-up request"). A pin is a lease with a TTL: it must be renewed
// or it expires and the associated KV cache entry becomes eligible for
// ordinary LRU eviction like any other.
//
// Pinning here is advisory to the host, not a KV budget override: the
// kvcache.Store still evicts under memory pressure regardless of pin
// state. sessionpin exists so a host-side scheduler can ask "is this
// SessionId still wanted" before routing a follow-up request to it.
package sessionpin

import (
	"context"
	"time"

	"github.com/tinyforge/llminfer/internal/kvcache"
)

// Store is the minimal pin-lease API every backend implements. Pin is
// idempotent: pinning an already-pinned SessionId refreshes its TTL
// rather than erroring.
type Store interface {
	Pin(ctx context.Context, id kvcache.SessionID, ttl time.Duration) error
	Unpin(ctx context.Context, id kvcache.SessionID) error
	IsPinned(ctx context.Context, id kvcache.SessionID) (bool, error)
}
