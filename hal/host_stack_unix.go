//go:build unix

package hal

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

type mmapStacks struct {
	pageSize int
}

func newHostStacks() StackAllocator {
	return mmapStacks{pageSize: unix.Getpagesize()}
}

// AllocStack maps size bytes (rounded up to pages) plus one PROT_NONE guard
// page below them, so an overflow faults instead of corrupting memory.
func (a mmapStacks) AllocStack(size int) (GuardedStack, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap stack %d: %w", size, ErrInvalidStackSize)
	}
	page := a.pageSize
	n := (size + page - 1) / page * page

	region, err := unix.Mmap(-1, 0, n+page, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap stack of %d bytes: %w", n, err)
	}
	if err := unix.Mprotect(region[:page], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("mprotect guard page: %w", err)
	}
	return &mmapStack{region: region, mem: region[page:]}, nil
}

type mmapStack struct {
	region []byte
	mem    []byte
	once   sync.Once
}

func (s *mmapStack) Memory() []byte { return s.mem }
func (s *mmapStack) Base() uintptr  { return uintptr(unsafe.Pointer(&s.mem[0])) }
func (s *mmapStack) Top() uintptr   { return s.Base() + uintptr(len(s.mem)) }

func (s *mmapStack) Release() {
	s.once.Do(func() {
		_ = unix.Munmap(s.region)
		s.mem = nil
	})
}
