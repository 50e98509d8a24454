package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"nucleus/hal"
)

// DefaultStackSize is the kernel stack size used when Config leaves it zero.
const DefaultStackSize = 64 << 10

var (
	ErrRunning = errors.New("kernel already running")
	ErrNoCPUs  = errors.New("machine has no CPUs")
)

// Config holds kernel tunables.
type Config struct {
	// StackSize is the size of every task's kernel stack.
	StackSize int
	// Loader builds address spaces for the Spawn syscall; nil disables it.
	Loader Loader
	// KernelRoot is the kernel page-table root, loaded for kernel tasks.
	KernelRoot uint64
	// Trace logs every context switch.
	Trace bool
}

// Kernel is the execution core: task table, per-CPU schedulers, channels and
// the device tokens tasks contend for.
type Kernel struct {
	h   hal.HAL
	log hal.Logger
	cfg Config

	sched     *GlobalScheduler
	cpus      []*cpu
	endpoints *EndpointTable
	keys      *keyboard
	display   displayToken

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	shutdown atomic.Bool
	exitCode atomic.Uint64

	panicked     atomic.Bool
	panicOnce    sync.Once
	panicHandler atomic.Value // func(PanicInfo)
	panicMu      sync.Mutex
	panicInfo    PanicInfo
}

// New builds a kernel over h. Tasks may be spawned before Run.
func New(h hal.HAL, cfg Config) (*Kernel, error) {
	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.StackSize < 2*FrameSize {
		return nil, fmt.Errorf("kernel stack of %d bytes: %w", cfg.StackSize, hal.ErrInvalidStackSize)
	}
	hws := h.Machine().CPUs()
	if len(hws) == 0 {
		return nil, ErrNoCPUs
	}

	k := &Kernel{
		h:         h,
		log:       h.Logger(),
		cfg:       cfg,
		endpoints: newEndpointTable(),
		keys:      newKeyboard(),
		done:      make(chan struct{}),
	}
	k.sched = newGlobalScheduler(k)
	for _, hw := range hws {
		hw.LoadAddressSpace(cfg.KernelRoot)
		k.cpus = append(k.cpus, newCPU(k, hw))
	}
	return k, nil
}

// Run drives every CPU until Shutdown, a kernel panic or ctx cancellation.
// It returns nil after Shutdown and ErrHalted after a panic.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	k.logf("kernel: %d cpus, stack %d bytes", len(k.cpus), k.cfg.StackSize)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range k.cpus {
		c := c
		g.Go(func() error {
			c.run()
			return nil
		})
	}
	g.Go(func() error {
		k.pumpKeys()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			k.halt()
		case <-k.done:
		}
		return nil
	})
	err := g.Wait()

	switch {
	case k.InPanicMode():
		return ErrHalted
	case k.shutdown.Load():
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

// Shutdown stops every CPU; Run returns nil.
func (k *Kernel) Shutdown(code uint64) {
	if k.shutdown.CompareAndSwap(false, true) {
		k.exitCode.Store(code)
		k.logf("kernel: shutdown (code %d)", code)
	}
	k.halt()
}

// ExitCode is the code passed to Shutdown.
func (k *Kernel) ExitCode() uint64 { return k.exitCode.Load() }

// Done is closed once the kernel has stopped.
func (k *Kernel) Done() <-chan struct{} { return k.done }

func (k *Kernel) halt() {
	k.stopOnce.Do(func() { close(k.done) })
}

func (k *Kernel) stopped() bool {
	select {
	case <-k.done:
		return true
	default:
		return false
	}
}

// Scheduler returns the global scheduler.
func (k *Kernel) Scheduler() *GlobalScheduler { return k.sched }

// Endpoints returns the global endpoint table.
func (k *Kernel) Endpoints() *EndpointTable { return k.endpoints }

// NumCPU is the number of processors the kernel drives.
func (k *Kernel) NumCPU() int { return len(k.cpus) }

// CPU returns the local scheduler of processor i.
func (k *Kernel) CPU(i int) *LocalScheduler { return k.cpus[i].sched }

func (k *Kernel) cpuByID(id int) *cpu {
	for _, c := range k.cpus {
		if c.hw.ID() == id {
			return c
		}
	}
	return k.cpus[0]
}

// Lookup returns a referenced task handle; the caller must Put it.
func (k *Kernel) Lookup(id TaskID) (*Task, bool) { return k.sched.Lookup(id) }

// SpawnKernel starts a kernel task running prog.
func (k *Kernel) SpawnKernel(prog Program, arg uint64) (TaskID, error) {
	return k.sched.Spawn(SpawnRequest{Kind: KindKernel, Program: prog, Arg: arg})
}

// SpawnImage starts a user task from a loaded image. On failure the image's
// address space is released.
func (k *Kernel) SpawnImage(img *Image, arg uint64, owned ...EndpointID) (TaskID, error) {
	id, err := k.sched.Spawn(SpawnRequest{
		Kind:      KindUser,
		Program:   img.Program,
		Space:     img.Space,
		Entry:     img.Entry,
		UserStack: img.StackTop,
		Arg:       arg,
		Owned:     owned,
	})
	if err != nil {
		if img.Space != nil {
			img.Space.Release()
		}
		return 0, err
	}
	k.logf("kernel: spawned %s as task %d", img.Name, id)
	return id, nil
}

// freeTask runs when the last reference to t is dropped.
func (k *Kernel) freeTask(t *Task) {
	t.mu.Lock()
	stack := t.inner.stack
	t.inner.stack = nil
	state := t.inner.state
	t.mu.Unlock()

	if stack != nil {
		stack.Release()
	}
	if t.space != nil {
		t.space.Release()
	}
	k.tracef("sched: task %d freed (%s)", t.id, state)
}

// wake moves t from Blocked on key to Ready, consuming the wait-slot
// reference the waker holds. from is the waker's CPU, nil for wakes raised
// outside a task. It reports whether t was woken.
func (k *Kernel) wake(t *Task, key any, from *cpu) bool {
	t.mu.Lock()
	in := &t.inner
	if in.state != StateBlocked || in.waitOn != key {
		t.mu.Unlock()
		t.put()
		return false
	}
	in.state = StateReady
	in.reason = BlockNone
	in.waitOn = nil
	if in.onCPU {
		// Its own scheduler re-queues it once the switch-out completes.
		t.mu.Unlock()
		t.put()
		return true
	}
	target := from
	if target == nil {
		target = k.cpuByID(in.lastCPU)
	}
	in.lastCPU = target.hw.ID()
	t.mu.Unlock()

	target.sched.enqueue(t)
	if target != from {
		target.hw.SendIPI()
	}
	k.tracef("sched: task %d woken onto cpu%d", t.id, target.hw.ID())
	return true
}

// trampoline is the first code a task's goroutine runs.
func (k *Kernel) trampoline(t *Task) {
	c := &Context{k: k, t: t}
	select {
	case r := <-t.resume:
		c.attach(r)
	case <-k.done:
		return
	}

	defer func() {
		if v := recover(); v != nil {
			c.fault(v)
		}
	}()
	t.prog.Run(c)
	c.Exit(0)
}

func (k *Kernel) logf(format string, args ...any) {
	k.log.WriteLineString(fmt.Sprintf(format, args...))
}

func (k *Kernel) tracef(format string, args ...any) {
	if k.cfg.Trace {
		k.logf(format, args...)
	}
}
