package sessionpin

import (
	"context"
	"sync"
	"time"

	"github.com/tinyforge/llminfer/internal/kvcache"
)

// Memory is an in-process Store backed by a map of expiry times. It is
// the default for single-process deployments and the fixture used to
// test the pin-lease semantics shared with the Redis backend.
type Memory struct {
	mu      sync.Mutex
	expires map[kvcache.SessionID]time.Time
	now     func() time.Time
}

// NewMemory returns an empty in-memory pin store.
func NewMemory() *Memory {
	return &Memory{expires: make(map[kvcache.SessionID]time.Time), now: time.Now}
}

func (m *Memory) Pin(_ context.Context, id kvcache.SessionID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[id] = m.now().Add(ttl)
	return nil
}

func (m *Memory) Unpin(_ context.Context, id kvcache.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, id)
	return nil
}

func (m *Memory) IsPinned(_ context.Context, id kvcache.SessionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[id]
	if !ok {
		return false, nil
	}
	if m.now().After(exp) {
		delete(m.expires, id)
		return false, nil
	}
	return true, nil
}
