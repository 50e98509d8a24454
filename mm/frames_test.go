package mm

import (
	"errors"
	"testing"
)

func TestFramesAllocFree(t *testing.T) {
	f := NewFrames(0x1001, 2)
	a, err := f.Alloc()
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if a != 0x2000 {
		t.Fatalf("Alloc() = %#x, want page-aligned %#x", a, 0x2000)
	}
	b, err := f.Alloc()
	if err != nil || b != a+PageSize {
		t.Fatalf("Alloc() = %#x, %v, want %#x", b, err, a+PageSize)
	}
	if _, err := f.Alloc(); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Alloc() on exhausted allocator error = %v, want %v", err, ErrNoMemory)
	}
	if f.InUse() != 2 {
		t.Fatalf("InUse() = %d, want 2", f.InUse())
	}

	if err := f.Free(a); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	if err := f.Free(a); !errors.Is(err, ErrDoubleFree) {
		t.Fatalf("second Free() error = %v, want %v", err, ErrDoubleFree)
	}
	if c, err := f.Alloc(); err != nil || c != a {
		t.Fatalf("Alloc() after Free = %#x, %v, want reuse of %#x", c, err, a)
	}
}
