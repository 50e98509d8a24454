package hal

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

var ErrInvalidStackSize = errors.New("invalid stack size")

// HeapStacks allocates stacks from the Go heap.
//
// There is no hardware guard page; the kernel's push bounds check is the only
// overflow detection. Used by tests and on hosts without mmap.
type HeapStacks struct {
	live atomic.Int64
}

// NewHeapStacks returns a heap-backed stack allocator.
func NewHeapStacks() *HeapStacks { return &HeapStacks{} }

// Live reports how many stacks have been allocated and not released.
func (a *HeapStacks) Live() int64 { return a.live.Load() }

func (a *HeapStacks) AllocStack(size int) (GuardedStack, error) {
	if size <= 0 {
		return nil, fmt.Errorf("heap stack %d: %w", size, ErrInvalidStackSize)
	}
	a.live.Add(1)
	return &heapStack{mem: make([]byte, size), owner: a}, nil
}

type heapStack struct {
	mem      []byte
	owner    *HeapStacks
	released atomic.Bool
}

func (s *heapStack) Memory() []byte { return s.mem }
func (s *heapStack) Base() uintptr  { return uintptr(unsafe.Pointer(&s.mem[0])) }
func (s *heapStack) Top() uintptr   { return s.Base() + uintptr(len(s.mem)) }

func (s *heapStack) Release() {
	if s.released.Swap(true) {
		return
	}
	s.owner.live.Add(-1)
}
