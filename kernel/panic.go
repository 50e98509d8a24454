package kernel

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrHalted is returned by Run after a kernel panic halted every CPU.
var ErrHalted = errors.New("kernel halted")

// PanicInfo describes the first kernel-fatal condition.
type PanicInfo struct {
	TaskID TaskID
	CPU    int
	Reason string
	Stack  []byte
}

func (p PanicInfo) String() string {
	return fmt.Sprintf("cpu%d task %d: %s", p.CPU, p.TaskID, p.Reason)
}

// InPanicMode reports whether the kernel has panicked.
func (k *Kernel) InPanicMode() bool {
	return k.panicked.Load()
}

// SetPanicHandler installs the handler run on the first kernel panic.
//
// The handler is invoked at most once, before the CPUs are released. It must
// not panic and must not call back into the kernel.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panicHandler.Store(fn)
}

// PanicInfo returns the recorded panic, if any.
func (k *Kernel) PanicInfo() (PanicInfo, bool) {
	if !k.panicked.Load() {
		return PanicInfo{}, false
	}
	k.panicMu.Lock()
	defer k.panicMu.Unlock()
	return k.panicInfo, true
}

// fatal records an unrecoverable kernel error and halts every CPU. It
// returns; callers stop whatever they were doing.
func (k *Kernel) fatal(id TaskID, cpu int, format string, args ...any) {
	info := PanicInfo{TaskID: id, CPU: cpu, Reason: fmt.Sprintf(format, args...)}
	k.panicOnce.Do(func() {
		info.Stack = captureStack()
		k.panicMu.Lock()
		k.panicInfo = info
		k.panicMu.Unlock()
		k.panicked.Store(true)

		k.log.WriteLineString("panic: " + info.String())
		if v := k.panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
		k.halt()
	})
}

// fatalTask is fatal called on a task goroutine; it never returns.
func (c *Context) fatalTask(format string, args ...any) {
	c.k.fatal(c.t.id, c.cpuID(), format, args...)
	runtime.Goexit()
}

// maxPanicStack bounds the goroutine dump kept in PanicInfo.
const maxPanicStack = 16 << 10

func captureStack() []byte {
	buf := make([]byte, maxPanicStack)
	return buf[:runtime.Stack(buf, false)]
}
