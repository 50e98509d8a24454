package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// ErrNoWindow is returned by RunWindow in builds without a desktop backend.
var ErrNoWindow = errors.New("window mode requires cgo")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Scroller is implemented by framebuffers with a hardware scroll register.
type Scroller interface {
	SetScroll(line int)
}

// KeyCode is a minimal key identifier.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyEscape
	KeyBackspace
	KeyTab
)

// KeyEvent is a keyboard event.
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events (best-effort on each platform).
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// CPU is one processor as seen by its local scheduler.
//
// The address-space and trap-stack registers are only touched by the CPU's
// own scheduler, with its interrupts masked.
type CPU interface {
	ID() int

	// LoadAddressSpace installs a top-level page table (CR3).
	LoadAddressSpace(root uint64)
	AddressSpace() uint64

	// SetTrapStack installs the stack used for traps from ring 3 (TSS.RSP0).
	SetTrapStack(top uintptr)
	TrapStack() uintptr

	// Timer delivers this CPU's periodic timer interrupt.
	Timer() <-chan uint64

	// SendIPI raises a reschedule interrupt on this CPU.
	SendIPI()
	IPI() <-chan struct{}
}

// Machine enumerates the processors.
type Machine interface {
	CPUs() []CPU
}

// GuardedStack is kernel stack memory with an unmapped guard page below it.
type GuardedStack interface {
	// Memory is the usable stack region; Base is its lowest address.
	Memory() []byte
	Base() uintptr
	Top() uintptr
	Release()
}

// StackAllocator hands out guarded kernel stacks.
type StackAllocator interface {
	AllocStack(size int) (GuardedStack, error)
}

// HAL provides the only contact point between the kernel and the outside world.
type HAL interface {
	Logger() Logger
	Display() Display
	Input() Input
	Machine() Machine
	Stacks() StackAllocator
}
