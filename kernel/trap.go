package kernel

import (
	"fmt"
	"runtime"
)

// Fault is raised inside a task by a bad memory access. In a user task it
// is an implicit exit; in a kernel task it is fatal.
type Fault struct {
	Addr  uint64
	Len   uint64
	Write bool
	Err   error
}

func (f *Fault) Error() string {
	op := "read"
	if f.Write {
		op = "write"
	}
	return fmt.Sprintf("%s fault at %#x+%d: %v", op, f.Addr, f.Len, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// attach installs the state a CPU hands the task on trap return.
func (c *Context) attach(r resume) {
	c.cpu = r.cpu
	c.frame = r.frame
}

// enter is the kernel-entry safe point: a pending timer interrupt on this
// CPU preempts the caller here.
func (c *Context) enter() {
	if c.cpu != nil && c.cpu.preempt.Swap(false) {
		c.trap(trapPreempt)
	}
}

// trap saves the task's frame on its kernel stack at the CPU's trap-stack
// top, hands the CPU the stack pointer and waits to be resumed. A trap of
// kind trapExit never returns.
func (c *Context) trap(kind trapKind) {
	t := c.t
	f := c.frame
	f.RAX = uint64(kind)
	sp, err := pushFrame(t.kernelStack(), c.cpu.hw.TrapStack(), f)
	if err != nil {
		c.fatalTask("trap entry: %v", err)
	}

	select {
	case c.cpu.traps <- trap{kind: kind, sp: sp}:
	case <-c.k.done:
		runtime.Goexit()
	}
	if kind == trapExit {
		runtime.Goexit()
	}

	select {
	case r := <-t.resume:
		c.attach(r)
	case <-c.k.done:
		runtime.Goexit()
	}
}

// block traps after the caller marked itself Blocked.
func (c *Context) block() { c.trap(trapBlock) }

// fault handles a panic recovered from the task's program.
func (c *Context) fault(v any) {
	if c.t.kind == KindKernel {
		c.fatalTask("kernel task %d: %v", c.t.id, v)
	}
	c.k.logf("task %d: fault: %v", c.t.id, v)
	c.exit(FaultExitCode)
}
