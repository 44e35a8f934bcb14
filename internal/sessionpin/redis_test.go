package sessionpin

import (
	"context"
	"testing"
	"time"

	"github.com/tinyforge/llminfer/internal/kvcache"
)

// fakeRedis is an in-memory stand-in for RedisEvaler, just enough to
// exercise Redis's key layout and script-argument plumbing without a
// live server.
type fakeRedis struct {
	ttlMillis map[string]int64
	present   map[string]bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{ttlMillis: make(map[string]int64), present: make(map[string]bool)}
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) (interface{}, error) {
	key := keys[0]
	f.present[key] = true
	f.ttlMillis[key] = args[0].(int64)
	return int64(1), nil
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) (int64, error) {
	if f.present[keys[0]] {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) (int64, error) {
	delete(f.present, keys[0])
	delete(f.ttlMillis, keys[0])
	return 1, nil
}

func TestRedis_PinSetsKeyWithTTL(t *testing.T) {
	fr := newFakeRedis()
	r := NewRedis(fr, "")
	id := kvcache.SessionID("s1")

	if err := r.Pin(context.Background(), id, 5*time.Second); err != nil {
		t.Fatalf("pin: %v", err)
	}
	pinned, err := r.IsPinned(context.Background(), id)
	if err != nil {
		t.Fatalf("is pinned: %v", err)
	}
	if !pinned {
		t.Fatalf("expected id to be pinned")
	}
	if fr.ttlMillis["sessionpin:s1"] != 5000 {
		t.Fatalf("expected 5000ms ttl arg, got %d", fr.ttlMillis["sessionpin:s1"])
	}
}

func TestRedis_UnpinDeletesKey(t *testing.T) {
	fr := newFakeRedis()
	r := NewRedis(fr, "")
	id := kvcache.SessionID("s1")

	_ = r.Pin(context.Background(), id, time.Minute)
	if err := r.Unpin(context.Background(), id); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	pinned, _ := r.IsPinned(context.Background(), id)
	if pinned {
		t.Fatalf("expected id to be unpinned after delete")
	}
}

func TestRedis_RejectsNonPositiveTTL(t *testing.T) {
	fr := newFakeRedis()
	r := NewRedis(fr, "")
	if err := r.Pin(context.Background(), kvcache.SessionID("s1"), 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestRedis_CustomPrefixIsApplied(t *testing.T) {
	fr := newFakeRedis()
	r := NewRedis(fr, "myapp:pin:")
	_ = r.Pin(context.Background(), kvcache.SessionID("abc"), time.Second)
	if !fr.present["myapp:pin:abc"] {
		t.Fatalf("expected key under custom prefix")
	}
}
