package kernel

import (
	"fmt"
	"sync/atomic"

	"nucleus/hal"
)

type trapKind uint8

const (
	trapPreempt trapKind = iota + 1
	trapYield
	trapBlock
	trapExit
)

func (k trapKind) String() string {
	switch k {
	case trapPreempt:
		return "preempt"
	case trapYield:
		return "yield"
	case trapBlock:
		return "block"
	case trapExit:
		return "exit"
	default:
		return "unknown"
	}
}

// trap is what a task hands its CPU on kernel entry: why, and where its
// frame now sits on its kernel stack.
type trap struct {
	kind trapKind
	sp   uintptr
}

// resume is what a CPU hands a task on trap return.
type resume struct {
	cpu   *cpu
	frame TrapFrame
}

// cpu is the execution loop of one processor.
type cpu struct {
	k     *Kernel
	hw    hal.CPU
	sched *LocalScheduler

	traps chan trap

	// preempt is raised by the timer and consumed at the running task's
	// next kernel entry.
	preempt atomic.Bool
	ticks   atomic.Uint64
	idles   atomic.Uint64
}

func newCPU(k *Kernel, hw hal.CPU) *cpu {
	return &cpu{
		k:     k,
		hw:    hw,
		sched: newLocalScheduler(k, hw),
		traps: make(chan trap, 1),
	}
}

// run drives the CPU until the kernel stops.
func (c *cpu) run() {
	var sp uintptr
	for !c.k.stopped() {
		next := c.sched.Schedule(sp)
		sp = 0
		if next == 0 {
			if !c.idle() {
				return
			}
			continue
		}

		t := c.sched.current
		frame, _, err := popFrame(t.kernelStack(), next)
		if err != nil {
			c.k.fatal(t.id, c.hw.ID(), "trap return: %v", err)
			return
		}
		if !frame.valid() {
			c.k.fatal(t.id, c.hw.ID(), "trap return: bad frame cs=%#x ss=%#x", frame.CS, frame.SS)
			return
		}

		tr, ok := c.dispatch(t, frame)
		if !ok {
			return
		}
		c.k.tracef("sched: cpu%d task %d trap %s", c.hw.ID(), t.id, tr.kind)
		sp = tr.sp
	}
}

// dispatch resumes t and waits for its next trap.
func (c *cpu) dispatch(t *Task, f TrapFrame) (trap, bool) {
	t.mu.Lock()
	start := !t.inner.started
	t.inner.started = true
	t.mu.Unlock()
	if start {
		go c.k.trampoline(t)
	}
	c.preempt.Store(false)
	t.resume <- resume{cpu: c, frame: f}

	for {
		select {
		case tr := <-c.traps:
			return tr, true
		case <-c.hw.Timer():
			c.ticks.Add(1)
			c.preempt.Store(true)
		case <-c.hw.IPI():
		case <-c.k.done:
			return trap{}, false
		}
	}
}

// idle halts until an interrupt arrives. It reports false once the kernel
// has stopped.
func (c *cpu) idle() bool {
	c.idles.Add(1)
	select {
	case <-c.hw.Timer():
		c.ticks.Add(1)
		c.preempt.Store(false)
	case <-c.hw.IPI():
	case <-c.k.done:
		return false
	}
	return true
}

func (c *cpu) String() string { return fmt.Sprintf("cpu%d", c.hw.ID()) }
