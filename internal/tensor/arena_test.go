package tensor

import (
	"errors"
	"testing"
)

func TestSubArena_RentRelease_ReusesBuffer(t *testing.T) {
	s := newSubArena()
	shape := Shape{8, 8}
	t1, err := s.Rent(shape, 2)
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if len(t1.Floats) != 64 {
		t.Fatalf("expected 64 logical elements, got %d", len(t1.Floats))
	}
	for _, v := range t1.Floats {
		if v != 0 {
			t.Fatalf("expected zeroed buffer, got %v", v)
		}
	}
	backing := t1.Floats[:cap(t1.Floats)]
	backingPtr := &backing[0]
	s.Release(t1, false)

	t2, err := s.Rent(shape, 2)
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	reused := t2.Floats[:cap(t2.Floats)]
	if &reused[0] != backingPtr {
		t.Fatalf("expected buffer reuse from free list")
	}
}

func TestSubArena_RentZeroElements_Fails(t *testing.T) {
	s := newSubArena()
	if _, err := s.Rent(Shape{0, 4}, 2); err == nil {
		t.Fatalf("expected error for zero-element shape")
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, minBucket},
		{64, 64},
		{65, 128},
		{65536, 65536},
		{65537, 131072},
	}
	for _, tt := range tests {
		if got := bucketFor(tt.n); got != tt.want {
			t.Errorf("bucketFor(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestArena_WorkerWrapsIndex(t *testing.T) {
	a := NewArena(2)
	if a.NumWorkers() != 2 {
		t.Fatalf("expected 2 workers, got %d", a.NumWorkers())
	}
	if a.Worker(0) == a.Worker(1) {
		t.Fatalf("expected distinct sub-arenas per worker")
	}
	if a.Worker(2) != a.Worker(0) {
		t.Fatalf("expected worker index to wrap modulo worker count")
	}
}

func TestSubArena_Scoped_ReleasesOnError(t *testing.T) {
	s := newSubArena()
	shape := Shape{4, 4}
	wantErr := errors.New("boom")
	err := s.Scoped(shape, 2, func(Tensor) error { return wantErr })
	if err != wantErr {
		t.Fatalf("expected scoped error to propagate, got %v", err)
	}
	// A subsequent rent of the same bucket should reuse the released buffer.
	if len(s.buckets[minBucket]) != 1 {
		t.Fatalf("expected buffer returned to free list on error path, got %d free", len(s.buckets[minBucket]))
	}
}
