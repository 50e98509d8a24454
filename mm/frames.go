// Package mm is the host address-space builder: physical frames for page
// tables and mapped pages, user address spaces sharing the kernel upper
// half, and the program image loader.
package mm

import (
	"errors"
	"fmt"
	"sync"
)

// PageSize is the size of one physical frame and one virtual page.
const PageSize = 4096

var (
	ErrNoMemory   = errors.New("out of physical frames")
	ErrDoubleFree = errors.New("frame freed twice")
)

// Frames is a physical frame allocator. Frame addresses are synthetic but
// unique; a freed frame is reused before fresh ones are carved.
type Frames struct {
	mu    sync.Mutex
	next  uint64
	limit uint64
	free  []uint64
	used  map[uint64]struct{}
}

// NewFrames manages count frames starting at physical address base.
func NewFrames(base uint64, count int) *Frames {
	base = (base + PageSize - 1) &^ (PageSize - 1)
	return &Frames{
		next:  base,
		limit: base + uint64(count)*PageSize,
		used:  make(map[uint64]struct{}),
	}
}

// Alloc returns the physical address of a zeroed frame.
func (f *Frames) Alloc() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pa uint64
	switch {
	case len(f.free) > 0:
		pa = f.free[len(f.free)-1]
		f.free = f.free[:len(f.free)-1]
	case f.next < f.limit:
		pa = f.next
		f.next += PageSize
	default:
		return 0, ErrNoMemory
	}
	f.used[pa] = struct{}{}
	return pa, nil
}

// Free returns a frame to the allocator.
func (f *Frames) Free(pa uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.used[pa]; !ok {
		return fmt.Errorf("frame %#x: %w", pa, ErrDoubleFree)
	}
	delete(f.used, pa)
	f.free = append(f.free, pa)
	return nil
}

// InUse reports the number of allocated frames.
func (f *Frames) InUse() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.used)
}
