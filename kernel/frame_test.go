package kernel

import (
	"errors"
	"testing"

	"nucleus/hal"
)

func TestPushPopFrame(t *testing.T) {
	stack, err := hal.NewHeapStacks().AllocStack(4 * FrameSize)
	if err != nil {
		t.Fatalf("AllocStack() error = %v", err)
	}
	want := TrapFrame{RAX: 1, RDI: 2, RSI: 3, RDX: 4, RIP: 0x40_1000, CS: UserCS, RFLAGS: rflagsIF, RSP: 0x7fff_f000, SS: UserSS}

	sp, err := pushFrame(stack, stack.Top(), want)
	if err != nil {
		t.Fatalf("pushFrame() error = %v", err)
	}
	if sp != stack.Top()-FrameSize {
		t.Fatalf("pushFrame() sp = %#x, want %#x", sp, stack.Top()-FrameSize)
	}
	got, after, err := popFrame(stack, sp)
	if err != nil {
		t.Fatalf("popFrame() error = %v", err)
	}
	if got != want {
		t.Fatalf("popFrame() = %+v, want %+v", got, want)
	}
	if after != stack.Top() {
		t.Fatalf("popFrame() sp = %#x, want %#x", after, stack.Top())
	}
}

func TestPushFrameOverflow(t *testing.T) {
	stack, err := hal.NewHeapStacks().AllocStack(FrameSize + 8)
	if err != nil {
		t.Fatalf("AllocStack() error = %v", err)
	}
	sp, err := pushFrame(stack, stack.Top(), TrapFrame{})
	if err != nil {
		t.Fatalf("first pushFrame() error = %v", err)
	}
	if _, err := pushFrame(stack, sp, TrapFrame{}); !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("second pushFrame() error = %v, want %v", err, ErrStackOverflow)
	}
	if _, err := pushFrame(stack, stack.Top()+8, TrapFrame{}); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("pushFrame() above top error = %v, want %v", err, ErrBadFrame)
	}
}

func TestPopFrameOutsideStack(t *testing.T) {
	stack, err := hal.NewHeapStacks().AllocStack(2 * FrameSize)
	if err != nil {
		t.Fatalf("AllocStack() error = %v", err)
	}
	for _, sp := range []uintptr{stack.Top(), stack.Top() - 8, stack.Base() - 8} {
		if _, _, err := popFrame(stack, sp); !errors.Is(err, ErrBadFrame) {
			t.Fatalf("popFrame(%#x) error = %v, want %v", sp, err, ErrBadFrame)
		}
	}
}

func TestInitialFrame(t *testing.T) {
	kf := initialFrame(KindKernel, KernelText, 0)
	if kf.UserMode() || !kf.valid() {
		t.Fatalf("kernel frame %+v: UserMode() = %t, valid() = %t", kf, kf.UserMode(), kf.valid())
	}
	uf := initialFrame(KindUser, 0x40_0000, 0x7fff_0000)
	if !uf.UserMode() || !uf.valid() {
		t.Fatalf("user frame %+v: UserMode() = %t, valid() = %t", uf, uf.UserMode(), uf.valid())
	}
	if uf.RSP != 0x7fff_0000 || uf.RFLAGS&0x200 == 0 {
		t.Fatalf("user frame %+v: want user stack and interrupts enabled", uf)
	}
	if bad := (TrapFrame{CS: UserCS, SS: KernelSS}); bad.valid() {
		t.Fatalf("mixed selectors accepted")
	}
}
