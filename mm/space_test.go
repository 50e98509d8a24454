package mm

import (
	"errors"
	"testing"
)

func newTestSpace(t *testing.T) (*Space, *Frames) {
	t.Helper()
	frames := NewFrames(0x10_0000, 256)
	ks, err := NewKernelSpace(frames)
	if err != nil {
		t.Fatalf("NewKernelSpace() error = %v", err)
	}
	s, err := NewSpace(frames, ks)
	if err != nil {
		t.Fatalf("NewSpace() error = %v", err)
	}
	if s.Root() == ks.Root() || s.KernelHalf() != ks {
		t.Fatalf("space root %#x shares kernel root %#x", s.Root(), ks.Root())
	}
	return s, frames
}

func TestSpaceMapAndCopy(t *testing.T) {
	s, _ := newTestSpace(t)
	if err := s.Map("data", UserHeapBase, 2*PageSize, true); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if !s.Mapped(UserHeapBase+PageSize-2, 4) {
		t.Fatalf("Mapped() = false across a page boundary")
	}
	if s.Mapped(UserHeapBase+2*PageSize-2, 4) {
		t.Fatalf("Mapped() = true past the region end")
	}
	if s.Mapped(UserHeapBase, 0) {
		t.Fatalf("Mapped() = true for an empty range")
	}

	if err := s.CopyOut(UserHeapBase+10, []byte("kernel")); err != nil {
		t.Fatalf("CopyOut() error = %v", err)
	}
	got, err := s.CopyIn(UserHeapBase+10, 6)
	if err != nil || string(got) != "kernel" {
		t.Fatalf("CopyIn() = %q, %v, want %q", got, err, "kernel")
	}
	got[0] = 'X'
	if again, _ := s.CopyIn(UserHeapBase+10, 1); again[0] != 'k' {
		t.Fatalf("CopyIn() returned an alias of user memory")
	}

	if _, err := s.CopyIn(UserHeapBase-1, 2); !errors.Is(err, ErrFault) {
		t.Fatalf("CopyIn() below region error = %v, want %v", err, ErrFault)
	}
	if _, err := s.CopyIn(^uint64(0)-1, 4); !errors.Is(err, ErrFault) {
		t.Fatalf("CopyIn() wrapping error = %v, want %v", err, ErrFault)
	}
}

func TestSpaceReadOnlyRegion(t *testing.T) {
	s, _ := newTestSpace(t)
	if err := s.Map("text", UserCodeBase, PageSize, false); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if err := s.fill(UserCodeBase, []byte{0x90}); err != nil {
		t.Fatalf("fill() error = %v", err)
	}
	if err := s.CopyOut(UserCodeBase, []byte{0xcc}); !errors.Is(err, ErrFault) {
		t.Fatalf("CopyOut() to text error = %v, want %v", err, ErrFault)
	}
	if b, _ := s.CopyIn(UserCodeBase, 1); b[0] != 0x90 {
		t.Fatalf("text byte = %#x, want 0x90", b[0])
	}
}

func TestSpaceMapErrors(t *testing.T) {
	s, _ := newTestSpace(t)
	if err := s.Map("a", UserHeapBase, PageSize, true); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if err := s.Map("b", UserHeapBase, 1, true); !errors.Is(err, ErrOverlap) {
		t.Fatalf("overlapping Map() error = %v, want %v", err, ErrOverlap)
	}
	if err := s.Map("c", UserHeapBase+1, PageSize, true); !errors.Is(err, ErrFault) {
		t.Fatalf("unaligned Map() error = %v, want %v", err, ErrFault)
	}
	if err := s.Map("d", KernelHalfBase, PageSize, true); !errors.Is(err, ErrFault) {
		t.Fatalf("kernel-half Map() error = %v, want %v", err, ErrFault)
	}
}

func TestSpaceReleaseFreesFrames(t *testing.T) {
	s, frames := newTestSpace(t)
	before := frames.InUse()
	if err := s.Map("heap", UserHeapBase, 3*PageSize, true); err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if frames.InUse() != before+3 {
		t.Fatalf("InUse() = %d, want %d", frames.InUse(), before+3)
	}

	s.Release()
	s.Release()
	// Only the kernel table is left.
	if frames.InUse() != 1 {
		t.Fatalf("InUse() after Release = %d, want 1", frames.InUse())
	}
	if s.Mapped(UserHeapBase, 1) {
		t.Fatalf("Mapped() = true after Release")
	}
	if _, err := s.CopyIn(UserHeapBase, 1); !errors.Is(err, ErrReleased) {
		t.Fatalf("CopyIn() after Release error = %v, want %v", err, ErrReleased)
	}
	if err := s.Map("again", UserHeapBase, PageSize, true); !errors.Is(err, ErrReleased) {
		t.Fatalf("Map() after Release error = %v, want %v", err, ErrReleased)
	}
}

func TestSpaceMapOutOfMemory(t *testing.T) {
	frames := NewFrames(0x10_0000, 3)
	ks, _ := NewKernelSpace(frames)
	s, err := NewSpace(frames, ks)
	if err != nil {
		t.Fatalf("NewSpace() error = %v", err)
	}
	if err := s.Map("big", UserHeapBase, 4*PageSize, true); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Map() error = %v, want %v", err, ErrNoMemory)
	}
	if frames.InUse() != 2 {
		t.Fatalf("InUse() = %d, want 2 after a failed Map", frames.InUse())
	}
}
