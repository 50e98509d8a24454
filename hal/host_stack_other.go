//go:build !unix

package hal

func newHostStacks() StackAllocator { return NewHeapStacks() }
