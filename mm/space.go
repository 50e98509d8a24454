package mm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Virtual layout of a user address space. Everything at or above
// KernelHalfBase belongs to the kernel and is shared by every space.
const (
	UserCodeBase   uint64 = 0x0040_0000
	UserHeapBase   uint64 = 0x1000_0000
	UserHeapSize          = 64 << 10
	UserStackTop   uint64 = 0x7fff_f000
	UserStackSize         = 64 << 10
	UserMax        uint64 = 0x0000_7fff_ffff_ffff
	KernelHalfBase uint64 = 0xffff_8000_0000_0000
)

var (
	ErrFault    = errors.New("page fault")
	ErrOverlap  = errors.New("mapping overlaps")
	ErrReleased = errors.New("address space released")
)

// KernelSpace is the kernel's own top-level page table. Its upper half is
// what every user space clones.
type KernelSpace struct {
	root uint64
}

// NewKernelSpace allocates the kernel's top-level table.
func NewKernelSpace(frames *Frames) (*KernelSpace, error) {
	root, err := frames.Alloc()
	if err != nil {
		return nil, fmt.Errorf("kernel page table: %w", err)
	}
	return &KernelSpace{root: root}, nil
}

func (k *KernelSpace) Root() uint64 { return k.root }

type region struct {
	name     string
	base     uint64
	data     []byte
	writable bool
	frames   []uint64
}

func (r *region) end() uint64 { return r.base + uint64(len(r.data)) }

// Space is a user address space: a private top-level table, user regions,
// and a reference to the shared kernel upper half.
type Space struct {
	frames *Frames
	kernel *KernelSpace
	root   uint64

	mu       sync.RWMutex
	regions  []*region
	released bool
}

// NewSpace allocates a user top-level table and clones the kernel half into it.
func NewSpace(frames *Frames, kernel *KernelSpace) (*Space, error) {
	root, err := frames.Alloc()
	if err != nil {
		return nil, fmt.Errorf("user page table: %w", err)
	}
	return &Space{frames: frames, kernel: kernel, root: root}, nil
}

func (s *Space) Root() uint64 { return s.root }

// KernelHalf returns the kernel table whose upper half this space shares.
func (s *Space) KernelHalf() *KernelSpace { return s.kernel }

// Map backs [base, base+size) with fresh zeroed frames.
func (s *Space) Map(name string, base uint64, size int, writable bool) error {
	if size <= 0 || base%PageSize != 0 {
		return fmt.Errorf("map %s at %#x+%d: %w", name, base, size, ErrFault)
	}
	pages := (size + PageSize - 1) / PageSize
	r := &region{name: name, base: base, data: make([]byte, pages*PageSize), writable: writable}
	if r.end() > UserMax {
		return fmt.Errorf("map %s at %#x: beyond user half: %w", name, base, ErrFault)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	for _, o := range s.regions {
		if r.base < o.end() && o.base < r.end() {
			return fmt.Errorf("map %s over %s: %w", name, o.name, ErrOverlap)
		}
	}
	for i := 0; i < pages; i++ {
		pa, err := s.frames.Alloc()
		if err != nil {
			for _, f := range r.frames {
				_ = s.frames.Free(f)
			}
			return fmt.Errorf("map %s: %w", name, err)
		}
		r.frames = append(r.frames, pa)
	}
	s.regions = append(s.regions, r)
	sort.Slice(s.regions, func(i, j int) bool { return s.regions[i].base < s.regions[j].base })
	return nil
}

// find returns the region fully containing [addr, addr+n).
func (s *Space) find(addr, n uint64) *region {
	end := addr + n
	if n == 0 || end < addr {
		return nil
	}
	i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].end() > addr })
	if i == len(s.regions) {
		return nil
	}
	r := s.regions[i]
	if addr < r.base || end > r.end() {
		return nil
	}
	return r
}

// Mapped reports whether [addr, addr+n) is fully mapped.
func (s *Space) Mapped(addr, n uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.released && s.find(addr, n) != nil
}

// CopyIn copies n bytes of user memory into a kernel-owned buffer.
func (s *Space) CopyIn(addr, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.released {
		return nil, ErrReleased
	}
	r := s.find(addr, n)
	if r == nil {
		return nil, fmt.Errorf("read %#x+%d: %w", addr, n, ErrFault)
	}
	off := addr - r.base
	out := make([]byte, n)
	copy(out, r.data[off:off+n])
	return out, nil
}

// CopyOut writes b into user memory at addr.
func (s *Space) CopyOut(addr uint64, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	r := s.find(addr, uint64(len(b)))
	if r == nil || !r.writable {
		return fmt.Errorf("write %#x+%d: %w", addr, len(b), ErrFault)
	}
	copy(r.data[addr-r.base:], b)
	return nil
}

// Release frees the top-level table and every mapped frame. Only the kernel
// half reference is dropped; the kernel's own table is untouched.
func (s *Space) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	for _, r := range s.regions {
		for _, pa := range r.frames {
			_ = s.frames.Free(pa)
		}
	}
	s.regions = nil
	_ = s.frames.Free(s.root)
}

// fill writes b at addr regardless of the region's protection. Used by the
// loader before the space is handed to a task.
func (s *Space) fill(addr uint64, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	r := s.find(addr, uint64(len(b)))
	if r == nil {
		return fmt.Errorf("fill %#x+%d: %w", addr, len(b), ErrFault)
	}
	copy(r.data[addr-r.base:], b)
	return nil
}
