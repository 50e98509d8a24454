package kernel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	ErrNoProgram = errors.New("spawn without program")
	ErrNoSpace   = errors.New("user task without address space")
)

// SpawnRequest describes a task to create.
type SpawnRequest struct {
	Kind    Kind
	Program Program
	// Space is required for user tasks. On success the task owns it.
	Space AddressSpace
	Entry uint64
	// UserStack is the initial user stack pointer.
	UserStack uint64
	Arg       uint64
	Parent    TaskID
	Owned     []EndpointID
}

// GlobalScheduler allocates task ids, owns the task table and places new
// tasks on a CPU.
type GlobalScheduler struct {
	k      *Kernel
	nextID atomic.Uint64

	mu    sync.Mutex
	tasks map[TaskID]*Task
	rr    int
}

func newGlobalScheduler(k *Kernel) *GlobalScheduler {
	return &GlobalScheduler{k: k, tasks: make(map[TaskID]*Task)}
}

// Spawn creates a task and makes it Ready on the least loaded CPU.
func (g *GlobalScheduler) Spawn(req SpawnRequest) (TaskID, error) {
	if req.Program == nil {
		return 0, ErrNoProgram
	}
	if req.Kind == KindUser && req.Space == nil {
		return 0, ErrNoSpace
	}
	if req.Kind == KindKernel {
		req.Space = nil
		req.Entry = KernelText
		req.UserStack = 0
	}

	stack, err := g.k.h.Stacks().AllocStack(g.k.cfg.StackSize)
	if err != nil {
		return 0, fmt.Errorf("spawn: kernel stack: %w", err)
	}
	top := stack.Top()
	sp, err := pushFrame(stack, top, initialFrame(req.Kind, req.Entry, req.UserStack))
	if err != nil {
		stack.Release()
		return 0, fmt.Errorf("spawn: initial frame: %w", err)
	}

	t := &Task{
		k:      g.k,
		id:     TaskID(g.nextID.Add(1)),
		kind:   req.Kind,
		space:  req.Space,
		prog:   req.Program,
		arg:    req.Arg,
		parent: req.Parent,
		owned:  make(map[EndpointID]struct{}),
		resume: make(chan resume, 1),
	}
	t.inner = taskInner{sp: sp, stack: stack, stackTop: top, state: StateInitializing}
	t.own(req.Owned...)
	// One reference for the table entry, one for the run queue.
	t.refs.Store(2)

	g.mu.Lock()
	g.tasks[t.id] = t
	g.mu.Unlock()

	target := g.place()
	t.mu.Lock()
	t.inner.state = StateReady
	t.inner.lastCPU = target.hw.ID()
	t.mu.Unlock()
	target.sched.enqueue(t)
	target.hw.SendIPI()

	g.k.tracef("sched: spawn %s task %d on cpu%d", t.kind, t.id, target.hw.ID())
	return t.id, nil
}

// place picks the CPU with the shortest run queue; ties go round robin.
func (g *GlobalScheduler) place() *cpu {
	cpus := g.k.cpus

	g.mu.Lock()
	start := g.rr
	g.rr = (g.rr + 1) % len(cpus)
	g.mu.Unlock()

	best := cpus[start]
	for i := 1; i < len(cpus); i++ {
		c := cpus[(start+i)%len(cpus)]
		if c.sched.rq.Len() < best.sched.rq.Len() {
			best = c
		}
	}
	return best
}

// Lookup returns a referenced handle for id. The caller must Put it.
func (g *GlobalScheduler) Lookup(id TaskID) (*Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok || !t.tryGet() {
		return nil, false
	}
	return t, true
}

// Len is the number of tasks in the table, zombies included.
func (g *GlobalScheduler) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// IDs lists the task table in id order.
func (g *GlobalScheduler) IDs() []TaskID {
	g.mu.Lock()
	ids := make([]TaskID, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reap drops the table entry of an exited task, exactly once.
func (g *GlobalScheduler) reap(t *Task) {
	t.mu.Lock()
	if t.inner.reaped {
		t.mu.Unlock()
		return
	}
	t.inner.reaped = true
	t.mu.Unlock()

	g.mu.Lock()
	if g.tasks[t.id] == t {
		delete(g.tasks, t.id)
	}
	g.mu.Unlock()
	t.put()
}

// zombieChildren returns referenced handles to exited children of parent.
func (g *GlobalScheduler) zombieChildren(parent TaskID) []*Task {
	g.mu.Lock()
	var out []*Task
	for _, t := range g.tasks {
		if t.parent == parent && t.tryGet() {
			out = append(out, t)
		}
	}
	g.mu.Unlock()

	kept := out[:0]
	for _, t := range out {
		if t.State() == StateZombie {
			kept = append(kept, t)
			continue
		}
		t.put()
	}
	return kept
}
