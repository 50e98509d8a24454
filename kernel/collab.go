package kernel

// AddressSpace is a user address space built by the memory manager. Its
// top-level table already shares the kernel upper half.
type AddressSpace interface {
	// Root is the physical address loaded into CR3.
	Root() uint64
	Mapped(addr, n uint64) bool
	CopyIn(addr, n uint64) ([]byte, error)
	CopyOut(addr uint64, b []byte) error
	Release()
}

// Image is a loaded user program ready to be spawned.
type Image struct {
	Name     string
	Space    AddressSpace
	Entry    uint64
	StackTop uint64
	Program  Program
}

// Loader builds an address space from a program image copied out of the
// caller's memory.
type Loader interface {
	Load(image []byte) (*Image, error)
}
