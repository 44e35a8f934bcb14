package kvcache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyforge/llminfer/telemetry"
)

// ErrBudgetExceeded is returned by GetOrCreate when no amount of
// eviction would bring the store under its configured budgets.
var ErrBudgetExceeded = errors.New("kvcache: budget exceeded")

// Budget groups the three admission limits of §4.5/§6.
type Budget struct {
	MaxBytesPerSession int64
	MaxBytesTotal      int64
	MaxSessions        int
}

// node is one entry in the LRU doubly-linked list; MRU is lruTail,
// LRU victim candidates are found scanning from lruHead. This mirrors
// the free-list shape of a block-pool allocator: appendToMRU /
// removeFromList are the same two operations, just applied to whole
// sessions instead of cache blocks.
type node struct {
	id         SessionID
	entry      *Entry
	bytes      int64
	prev, next *node
}

// Store is the per-engine KV cache store: a SessionID -> Entry map
// guarded by one admission/eviction lock, plus an LRU list over live
// sessions. Each Entry additionally carries its own mutex so that
// forward passes against different sessions never block each other.
type Store struct {
	mu       sync.Mutex
	budget   Budget
	sink     telemetry.Sink
	byID     map[SessionID]*node
	lruHead  *node
	lruTail  *node
	totalLen int64 // sum of per-session bytes; kept equal to len(live sessions) weighted sum
}

// NewStore creates a Store with the given budgets. A nil sink is
// replaced with telemetry.Nop.
func NewStore(budget Budget, sink telemetry.Sink) *Store {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Store{budget: budget, sink: sink, byID: make(map[SessionID]*node)}
}

// GlobalBytes returns the current sum of per-session byte usage.
func (s *Store) GlobalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLen
}

// LiveSessions returns the number of sessions currently resident.
func (s *Store) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// GetOrCreate returns the existing entry for id, touching it to MRU,
// or admits a new one of the given shape. Admission: if shape.Bytes()
// alone exceeds MaxBytesPerSession, fails immediately with
// ErrBudgetExceeded and creates nothing. Otherwise, if admitting this
// entry (plus holding to MaxSessions) would exceed MaxBytesTotal or
// MaxSessions, LRU-evicts other sessions — never the one being created,
// since it is not yet in the list — until it fits or no victims remain,
// in which case it fails with ErrBudgetExceeded and creates nothing;
// sessions evicted before that point stay evicted.
func (s *Store) GetOrCreate(id SessionID, shape Shape) (*Entry, error) {
	entryBytes := shape.Bytes()
	if entryBytes > s.budget.MaxBytesPerSession {
		return nil, fmt.Errorf("%w: entry needs %d bytes, per-session limit is %d",
			ErrBudgetExceeded, entryBytes, s.budget.MaxBytesPerSession)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.byID[id]; ok {
		s.touchLocked(n)
		return n.entry, nil
	}

	for s.wouldExceedLocked(entryBytes) {
		victim := s.lruHead
		if victim == nil {
			s.sink.Emit(telemetry.Event{Kind: telemetry.BudgetRejected, SessionID: string(id), Bytes: entryBytes})
			return nil, fmt.Errorf("%w: no evictable sessions remain", ErrBudgetExceeded)
		}
		s.evictLocked(victim, "admission for "+string(id))
	}

	entry := newEntry(shape)
	n := &node{id: id, entry: entry, bytes: entryBytes}
	s.appendMRULocked(n)
	s.byID[id] = n
	s.totalLen += entryBytes
	s.sink.Emit(telemetry.Event{Kind: telemetry.SessionCreated, SessionID: string(id), Bytes: entryBytes})
	return entry, nil
}

func (s *Store) wouldExceedLocked(newBytes int64) bool {
	if s.totalLen+newBytes > s.budget.MaxBytesTotal {
		return true
	}
	if s.budget.MaxSessions > 0 && len(s.byID) >= s.budget.MaxSessions {
		return true
	}
	return false
}

// Touch moves id to the MRU end of the LRU list. Called on every
// successful forward pass.
func (s *Store) Touch(id SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		s.touchLocked(n)
	}
}

// Release drops id's entry, returning its accounted bytes to the
// budget and removing it from the LRU list.
func (s *Store) Release(id SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		s.removeLocked(n)
		delete(s.byID, id)
		s.totalLen -= n.bytes
	}
}

func (s *Store) evictLocked(n *node, reason string) {
	s.removeLocked(n)
	delete(s.byID, n.id)
	s.totalLen -= n.bytes
	s.sink.Emit(telemetry.Event{Kind: telemetry.SessionEvicted, SessionID: string(n.id), Bytes: n.bytes, Reason: reason})
}

func (s *Store) touchLocked(n *node) {
	s.removeLocked(n)
	s.appendMRULocked(n)
}

func (s *Store) appendMRULocked(n *node) {
	n.prev, n.next = s.lruTail, nil
	if s.lruTail != nil {
		s.lruTail.next = n
	} else {
		s.lruHead = n
	}
	s.lruTail = n
}

func (s *Store) removeLocked(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.lruHead = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.lruTail = n.prev
	}
	n.prev, n.next = nil, nil
}
