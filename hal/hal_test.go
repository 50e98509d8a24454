package hal

import (
	"errors"
	"testing"
	"time"
)

func TestHeapStacks(t *testing.T) {
	a := NewHeapStacks()
	s, err := a.AllocStack(256)
	if err != nil {
		t.Fatalf("AllocStack() error = %v", err)
	}
	if s.Top()-s.Base() != 256 || len(s.Memory()) != 256 {
		t.Fatalf("stack [%#x,%#x) len %d, want 256 bytes", s.Base(), s.Top(), len(s.Memory()))
	}
	if a.Live() != 1 {
		t.Fatalf("Live() = %d, want 1", a.Live())
	}
	s.Release()
	s.Release()
	if a.Live() != 0 {
		t.Fatalf("Live() = %d, want 0", a.Live())
	}
	if _, err := a.AllocStack(0); !errors.Is(err, ErrInvalidStackSize) {
		t.Fatalf("AllocStack(0) error = %v, want %v", err, ErrInvalidStackSize)
	}
}

func TestHostStacks(t *testing.T) {
	a := newHostStacks()
	s, err := a.AllocStack(10000)
	if err != nil {
		t.Fatalf("AllocStack() error = %v", err)
	}
	defer s.Release()
	mem := s.Memory()
	if len(mem) < 10000 {
		t.Fatalf("len(Memory()) = %d, want at least 10000", len(mem))
	}
	mem[0], mem[len(mem)-1] = 1, 2
	if s.Top()-s.Base() != uintptr(len(mem)) {
		t.Fatalf("Top()-Base() = %d, want %d", s.Top()-s.Base(), len(mem))
	}
}

func TestHostCPUTickCoalesces(t *testing.T) {
	c := NewHostCPU(3)
	c.Tick(1)
	c.Tick(2)
	select {
	case seq := <-c.Timer():
		if seq != 1 {
			t.Fatalf("Timer() = %d, want 1", seq)
		}
	default:
		t.Fatalf("no pending tick")
	}
	select {
	case seq := <-c.Timer():
		t.Fatalf("second tick %d was not coalesced", seq)
	default:
	}

	c.SendIPI()
	c.SendIPI()
	<-c.IPI()
	select {
	case <-c.IPI():
		t.Fatalf("second IPI was not coalesced")
	default:
	}
}

func TestHostCPURegisters(t *testing.T) {
	c := NewHostCPU(1)
	c.LoadAddressSpace(0x5000)
	c.SetTrapStack(0x9000)
	if c.ID() != 1 || c.AddressSpace() != 0x5000 || c.TrapStack() != 0x9000 {
		t.Fatalf("cpu = %d %#x %#x, want 1 0x5000 0x9000", c.ID(), c.AddressSpace(), c.TrapStack())
	}
}

func TestHostCPUTimer(t *testing.T) {
	c := NewHostCPU(0)
	stop := make(chan struct{})
	defer close(stop)
	c.StartTimer(1000, stop)
	select {
	case <-c.Timer():
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}
}

func TestNewMachine(t *testing.T) {
	m := NewMachine(0)
	if len(m.CPUs()) != 1 {
		t.Fatalf("NewMachine(0) has %d cpus, want 1", len(m.CPUs()))
	}
	for i, c := range NewMachine(4).CPUs() {
		if c.ID() != i {
			t.Fatalf("cpu %d ID() = %d", i, c.ID())
		}
	}
}

func TestFramebufferScroll(t *testing.T) {
	fb := newHostFramebuffer(2, 3)
	for y := 0; y < 3; y++ {
		fb.buf[y*fb.stride] = byte(y + 1)
	}
	fb.SetScroll(-2)
	dst := make([]byte, len(fb.buf))
	fb.snapshotRGB565(dst)
	if dst[0] != 2 || dst[fb.stride] != 3 || dst[2*fb.stride] != 1 {
		t.Fatalf("snapshot rows = %d %d %d, want 2 3 1", dst[0], dst[fb.stride], dst[2*fb.stride])
	}

	fb.ClearRGB(255, 255, 255)
	fb.snapshotRGB565(dst)
	if dst[0] != 0xff || dst[1] != 0xff {
		t.Fatalf("cleared pixel = %#x%02x, want 0xffff", dst[1], dst[0])
	}
}

func TestRGB565(t *testing.T) {
	r, g, b := packRGB565(255, 128, 0).expand()
	if r != 255 || g != 130 || b != 0 {
		t.Fatalf("round trip = %d,%d,%d, want 255,130,0", r, g, b)
	}
}

func TestTTYKeyEvent(t *testing.T) {
	tests := []struct {
		in   rune
		want KeyEvent
	}{
		{'\r', KeyEvent{Code: KeyEnter, Press: true, Rune: '\n'}},
		{0x1b, KeyEvent{Code: KeyEscape, Press: true}},
		{0x7f, KeyEvent{Code: KeyBackspace, Press: true}},
		{'\t', KeyEvent{Code: KeyTab, Press: true, Rune: '\t'}},
		{'z', KeyEvent{Press: true, Rune: 'z'}},
	}
	for _, tt := range tests {
		if got := ttyKeyEvent(tt.in); got != tt.want {
			t.Fatalf("ttyKeyEvent(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestKeyboardEmitDropsWhenFull(t *testing.T) {
	k := newHostKeyboard()
	for i := 0; i < cap(k.ch)+5; i++ {
		k.emit(KeyEvent{Press: true, Rune: 'a'})
	}
	if len(k.Events()) != cap(k.ch) {
		t.Fatalf("buffered %d events, want %d", len(k.Events()), cap(k.ch))
	}
}
