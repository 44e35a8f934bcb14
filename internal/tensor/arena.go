package tensor

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is the error for an exhausted arena. Rent does not
// return it: the arena has no budget and allocates fresh buffers when a
// bucket's free list is empty.
var ErrOutOfMemory = errors.New("tensor: arena out of memory")

// Bucket boundaries: powers of two from 64 to 65536 float32 elements.
// Anything larger falls back to a one-off allocation (bypass) that is
// not returned to any free list.
const (
	minBucket = 64
	maxBucket = 65536
)

// Arena is an engine-owned pool of per-worker sub-arenas. Each worker
// (goroutine in the kernel tile-parallel pool, or the session's own
// goroutine for scratch tensors) rents from and releases to exactly one
// sub-arena; buffers are never returned across sub-arenas, matching the
// "rent on thread A, release on thread A" rule.
type Arena struct {
	subs []*SubArena
}

// NewArena creates an Arena with the given number of per-worker
// sub-arenas. workers must be >= 1.
func NewArena(workers int) *Arena {
	if workers < 1 {
		workers = 1
	}
	a := &Arena{subs: make([]*SubArena, workers)}
	for i := range a.subs {
		a.subs[i] = newSubArena()
	}
	return a
}

// Worker returns the sub-arena for the given worker index. Index is
// taken modulo the configured worker count so callers never need to
// bounds-check.
func (a *Arena) Worker(i int) *SubArena {
	return a.subs[i%len(a.subs)]
}

// NumWorkers reports how many sub-arenas this Arena manages.
func (a *Arena) NumWorkers() int { return len(a.subs) }

// SubArena is a per-thread bucketed pool of float32 buffers. It
// guarantees at most one live tensor per buffer: a buffer handed out by
// Rent is never handed out again until Release returns it.
type SubArena struct {
	buckets map[int][][]float32
}

func newSubArena() *SubArena {
	return &SubArena{buckets: make(map[int][][]float32)}
}

func bucketFor(n int) int {
	if n <= minBucket {
		return minBucket
	}
	b := minBucket
	for b < n {
		b <<= 1
	}
	return b
}

// Rent returns a Tensor of the given FP32 shape whose buffer has
// capacity at least product(shape). Buffers are drawn from the
// bucketed free list; sizes above maxBucket bypass the pool with a
// direct allocation that is never returned to a bucket.
func (s *SubArena) Rent(shape Shape, ndim int) (Tensor, error) {
	n := shape.Product(ndim)
	if n <= 0 {
		return Tensor{}, fmt.Errorf("tensor: rent requires positive element count, got %d", n)
	}
	bucket := bucketFor(n)
	var buf []float32
	if bucket > maxBucket {
		// Bypass: not pooled, not bucketed; caller still must Release
		// (a no-op) for symmetry with the pooled path.
		buf = make([]float32, bucket)
		return Tensor{Floats: buf[:n], Shape: shape, NDim: ndim, Scheme: FP32, owner: s, bucket: 0}, nil
	}
	free := s.buckets[bucket]
	if len(free) > 0 {
		buf = free[len(free)-1]
		s.buckets[bucket] = free[:len(free)-1]
	} else {
		buf = make([]float32, bucket)
	}
	for i := range buf[:n] {
		buf[i] = 0
	}
	return Tensor{Floats: buf[:n], Shape: shape, NDim: ndim, Scheme: FP32, owner: s, bucket: bucket}, nil
}

// Release returns t's buffer to the pool. zeroSensitive forces the
// buffer to be cleared before being made available for reuse; callers
// that handled confidential content (e.g. raw prompt activations for a
// session being torn down under a security policy) should set it.
// Release is a no-op for non-pooled (bypass or static) tensors.
func (s *SubArena) Release(t Tensor, zeroSensitive bool) {
	if t.owner != s || t.Scheme != FP32 {
		return
	}
	if t.bucket == 0 {
		return // bypass allocation, not bucketed
	}
	buf := t.Floats[:cap(t.Floats)]
	if zeroSensitive {
		for i := range buf {
			buf[i] = 0
		}
	}
	s.buckets[t.bucket] = append(s.buckets[t.bucket], buf)
}

// Scoped rents a tensor, invokes fn, and guarantees Release runs on
// every exit path including panics propagated out of fn.
func (s *SubArena) Scoped(shape Shape, ndim int, fn func(Tensor) error) (err error) {
	t, err := s.Rent(shape, ndim)
	if err != nil {
		return err
	}
	defer s.Release(t, false)
	return fn(t)
}
