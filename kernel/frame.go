package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"nucleus/hal"
)

// Segment selectors and flags of the x86-64 GDT layout the kernel uses.
const (
	KernelCS uint64 = 0x08
	KernelSS uint64 = 0x10
	UserCS   uint64 = 0x23
	UserSS   uint64 = 0x1b

	rflagsIF uint64 = 0x202

	// KernelText is the entry address recorded for kernel tasks.
	KernelText uint64 = 0xffff_ffff_8000_0000
)

// TrapFrame is the register state the trap entry pushes on the task's
// kernel stack and the trap return pops (iretq frame plus syscall registers).
type TrapFrame struct {
	RAX    uint64
	RDI    uint64
	RSI    uint64
	RDX    uint64
	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

const frameWords = 9

// FrameSize is the number of stack bytes one TrapFrame occupies.
const FrameSize = frameWords * 8

var (
	ErrStackOverflow = errors.New("kernel stack overflow into guard page")
	ErrBadFrame      = errors.New("stack pointer outside kernel stack")
)

// UserMode reports whether returning through f lands in ring 3.
func (f TrapFrame) UserMode() bool { return f.CS&3 == 3 }

func (f TrapFrame) valid() bool {
	return (f.CS == KernelCS && f.SS == KernelSS) || (f.CS == UserCS && f.SS == UserSS)
}

func initialFrame(kind Kind, entry, userStack uint64) TrapFrame {
	if kind == KindUser {
		return TrapFrame{RIP: entry, CS: UserCS, RFLAGS: rflagsIF, RSP: userStack, SS: UserSS}
	}
	return TrapFrame{RIP: entry, CS: KernelCS, RFLAGS: rflagsIF, SS: KernelSS}
}

func (f *TrapFrame) words() [frameWords]*uint64 {
	return [frameWords]*uint64{&f.RAX, &f.RDI, &f.RSI, &f.RDX, &f.RIP, &f.CS, &f.RFLAGS, &f.RSP, &f.SS}
}

// pushFrame stores f just below sp and returns the new stack pointer.
func pushFrame(stack hal.GuardedStack, sp uintptr, f TrapFrame) (uintptr, error) {
	base, top := stack.Base(), stack.Top()
	if sp > top {
		return 0, fmt.Errorf("push at %#x above top %#x: %w", sp, top, ErrBadFrame)
	}
	if sp < base+FrameSize {
		return 0, fmt.Errorf("push at %#x, base %#x: %w", sp, base, ErrStackOverflow)
	}
	sp -= FrameSize
	mem := stack.Memory()[sp-base:]
	for i, w := range f.words() {
		binary.LittleEndian.PutUint64(mem[i*8:], *w)
	}
	return sp, nil
}

// popFrame loads the frame at sp and returns it with the stack pointer above it.
func popFrame(stack hal.GuardedStack, sp uintptr) (TrapFrame, uintptr, error) {
	var f TrapFrame
	base, top := stack.Base(), stack.Top()
	if sp < base || sp+FrameSize > top {
		return f, 0, fmt.Errorf("pop at %#x, stack [%#x,%#x): %w", sp, base, top, ErrBadFrame)
	}
	mem := stack.Memory()[sp-base:]
	for i, w := range f.words() {
		*w = binary.LittleEndian.Uint64(mem[i*8:])
	}
	return f, sp + FrameSize, nil
}
