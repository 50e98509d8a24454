package kernel

import (
	"sync"
	"sync/atomic"

	"nucleus/hal"
)

// TaskID identifies a task. IDs start at 1 and are never reused; 0 means
// "no task".
type TaskID uint64

// Kind is the privilege level a task runs at.
type Kind uint8

const (
	KindKernel Kind = iota
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindKernel:
		return "kernel"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// State is a task's lifecycle state.
type State uint8

const (
	StateInitializing State = iota
	StateReady
	StateRunning
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// BlockReason records why a Blocked task is waiting.
type BlockReason uint8

const (
	BlockNone BlockReason = iota
	BlockChannelFull
	BlockChannelEmpty
	BlockKey
	BlockExit
)

func (r BlockReason) String() string {
	switch r {
	case BlockNone:
		return "none"
	case BlockChannelFull:
		return "channel full"
	case BlockChannelEmpty:
		return "channel empty"
	case BlockKey:
		return "key"
	case BlockExit:
		return "exit"
	default:
		return "unknown"
	}
}

// FaultExitCode is recorded for a user task killed by a fault.
const FaultExitCode uint64 = 139

// Program is the code a task runs. Returning from Run is Exit(0).
type Program interface {
	Run(*Context)
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(*Context)

func (f ProgramFunc) Run(c *Context) { f(c) }

// Task is a schedulable unit of execution.
//
// A *Task is a shared handle: the task table, a run queue (or the CPU
// running it), wait slots and Lookup callers each hold one reference. The
// kernel stack and address space are released when the last one is put.
type Task struct {
	k      *Kernel
	id     TaskID
	kind   Kind
	space  AddressSpace
	prog   Program
	arg    uint64
	parent TaskID

	refs atomic.Int32

	mu    sync.Mutex
	inner taskInner

	epMu  sync.Mutex
	owned map[EndpointID]struct{}

	// exitMu orders exit against waitpid registration.
	exitMu sync.Mutex

	resume chan resume
}

// taskInner is the mutable part of a task. Guarded by Task.mu.
type taskInner struct {
	sp       uintptr
	stack    hal.GuardedStack
	stackTop uintptr

	state  State
	reason BlockReason
	waitOn any

	// onCPU is set from switch-in until the scheduler has recorded the
	// task's stack pointer at switch-out.
	onCPU   bool
	queued  bool
	started bool
	lastCPU int

	exitCode    uint64
	exitWaiters []*Task
	reaped      bool

	ticks uint64
}

func (t *Task) ID() TaskID  { return t.id }
func (t *Task) Kind() Kind  { return t.kind }
func (t *Task) Arg() uint64 { return t.arg }

// Parent is the spawning task, 0 for tasks started by the kernel.
func (t *Task) Parent() TaskID { return t.parent }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.state
}

// Reason returns the block reason; BlockNone unless Blocked.
func (t *Task) Reason() BlockReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.reason
}

// Ticks returns the number of times the task was switched out.
func (t *Task) Ticks() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.ticks
}

// root is the address-space identifier the task runs under.
func (t *Task) root() uint64 {
	if t.space == nil {
		return t.k.cfg.KernelRoot
	}
	return t.space.Root()
}

func (t *Task) get() { t.refs.Add(1) }

// tryGet takes a reference unless the task is already being freed.
func (t *Task) tryGet() bool {
	for {
		n := t.refs.Load()
		if n <= 0 {
			return false
		}
		if t.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Put drops a reference obtained from Lookup.
func (t *Task) Put() { t.put() }

func (t *Task) put() {
	switch n := t.refs.Add(-1); {
	case n == 0:
		t.k.freeTask(t)
	case n < 0:
		t.k.fatal(t.id, -1, "double release of task %d", t.id)
	}
}

func (t *Task) owns(id EndpointID) bool {
	t.epMu.Lock()
	defer t.epMu.Unlock()
	_, ok := t.owned[id]
	return ok
}

func (t *Task) own(ids ...EndpointID) {
	t.epMu.Lock()
	defer t.epMu.Unlock()
	for _, id := range ids {
		t.owned[id] = struct{}{}
	}
}

// disown removes id from the ownership table and reports whether it was there.
func (t *Task) disown(id EndpointID) bool {
	t.epMu.Lock()
	defer t.epMu.Unlock()
	if _, ok := t.owned[id]; !ok {
		return false
	}
	delete(t.owned, id)
	return true
}

// Endpoints returns the endpoint ids the task may operate on.
func (t *Task) Endpoints() []EndpointID {
	t.epMu.Lock()
	defer t.epMu.Unlock()
	ids := make([]EndpointID, 0, len(t.owned))
	for id := range t.owned {
		ids = append(ids, id)
	}
	return ids
}

// blockOn marks t Blocked on key and takes the reference its wait slot holds.
// The caller holds the lock guarding the wait slot.
func (t *Task) blockOn(key any, reason BlockReason) {
	t.get()
	t.mu.Lock()
	t.inner.state = StateBlocked
	t.inner.reason = reason
	t.inner.waitOn = key
	t.mu.Unlock()
}

func (t *Task) kernelStack() hal.GuardedStack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.stack
}
