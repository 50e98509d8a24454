package hal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// HostConfig sizes the emulated machine.
type HostConfig struct {
	CPUs   int
	Hz     int
	Width  int
	Height int
}

type hostHAL struct {
	logger  *hostLogger
	fb      *hostFramebuffer
	kbd     *hostKeyboard
	machine *hostMachine
	stacks  StackAllocator
	hz      int

	stopOnce sync.Once
	stop     chan struct{}
}

// New returns a host HAL implementation.
func New(cfg HostConfig) HAL {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 240
	}
	return &hostHAL{
		logger:  newHostLogger(),
		fb:      newHostFramebuffer(cfg.Width, cfg.Height),
		kbd:     newHostKeyboard(),
		machine: NewMachine(cfg.CPUs).(*hostMachine),
		stacks:  newHostStacks(),
		hz:      cfg.Hz,
		stop:    make(chan struct{}),
	}
}

func (h *hostHAL) Logger() Logger         { return h.logger }
func (h *hostHAL) Display() Display       { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input           { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Machine() Machine       { return h.machine }
func (h *hostHAL) Stacks() StackAllocator { return h.stacks }

// startTimers arms every CPU's local timer.
func (h *hostHAL) startTimers() {
	for _, c := range h.machine.cpus {
		c.(*HostCPU).StartTimer(h.hz, h.stop)
	}
}

func (h *hostHAL) stopTimers() {
	h.stopOnce.Do(func() { close(h.stop) })
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func newHostLogger() *hostLogger {
	return &hostLogger{
		w:     colorable.NewColorableStdout(),
		color: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color && strings.HasPrefix(s, "panic:") {
		fmt.Fprintf(l.w, "\x1b[1;31m%s\x1b[0m\n", s)
		return
	}
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.WriteLineString(string(b))
}
