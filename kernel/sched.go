package kernel

import (
	"fmt"
	"sync/atomic"

	"nucleus/hal"
)

// LocalScheduler is one CPU's scheduler: a run queue and the task it is
// currently running.
type LocalScheduler struct {
	k  *Kernel
	hw hal.CPU
	rq RunQueue

	// current is only touched by Schedule.
	current *Task

	// masked is set while Schedule runs, like interrupts during a switch.
	masked atomic.Bool

	spaceLoads atomic.Uint64
	switches   atomic.Uint64
}

func newLocalScheduler(k *Kernel, hw hal.CPU) *LocalScheduler {
	return &LocalScheduler{k: k, hw: hw}
}

// CPU returns the processor this scheduler drives.
func (s *LocalScheduler) CPU() hal.CPU { return s.hw }

// Queue returns the local run queue.
func (s *LocalScheduler) Queue() *RunQueue { return &s.rq }

// SpaceLoads counts address-space switches performed by Schedule.
func (s *LocalScheduler) SpaceLoads() uint64 { return s.spaceLoads.Load() }

// Switches counts tasks switched in.
func (s *LocalScheduler) Switches() uint64 { return s.switches.Load() }

// Schedule performs one scheduling decision. sp is the saved stack pointer of
// the task that just trapped (ignored when nothing was running). It returns
// the stack pointer to restore, or 0 when the CPU should idle.
func (s *LocalScheduler) Schedule(sp uintptr) uintptr {
	if !s.masked.CompareAndSwap(false, true) {
		s.k.fatal(s.currentID(), s.hw.ID(), "scheduler re-entered")
		return 0
	}
	defer s.masked.Store(false)

	if prev := s.current; prev != nil {
		s.current = nil
		if !s.switchOut(prev, sp) {
			return 0
		}
	}

	for {
		next := s.rq.Pop()
		if next == nil {
			return 0
		}
		if sp, ok := s.switchIn(next); ok {
			return sp
		}
		if s.k.InPanicMode() {
			return 0
		}
	}
}

// switchOut records prev's stack pointer and decides where its handle goes.
func (s *LocalScheduler) switchOut(prev *Task, sp uintptr) bool {
	prev.mu.Lock()
	in := &prev.inner
	in.sp = sp
	in.onCPU = false
	in.ticks++

	requeue := false
	switch in.state {
	case StateZombie, StateBlocked:
		// A Blocked task is re-queued by whoever wakes it.
	case StateRunning, StateReady:
		// Ready here means it was woken before it got off the CPU.
		in.state = StateReady
		in.reason = BlockNone
		in.queued = true
		requeue = true
	default:
		state := in.state
		prev.mu.Unlock()
		s.k.fatal(prev.id, s.hw.ID(), "switch out of task in state %s", state)
		return false
	}
	state := in.state
	prev.mu.Unlock()

	s.k.tracef("sched: cpu%d task %d out (%s)", s.hw.ID(), prev.id, state)
	if requeue {
		s.rq.Push(prev)
		return true
	}
	prev.put()
	return true
}

// switchIn makes next the running task. It reports false if next had to be
// skipped.
func (s *LocalScheduler) switchIn(next *Task) (uintptr, bool) {
	next.mu.Lock()
	in := &next.inner
	switch in.state {
	case StateReady:
	case StateZombie:
		in.queued = false
		next.mu.Unlock()
		s.k.logf("sched: cpu%d dropped exited task %d from run queue", s.hw.ID(), next.id)
		next.put()
		return 0, false
	default:
		state := in.state
		next.mu.Unlock()
		s.k.fatal(next.id, s.hw.ID(), "run queue holds task in state %s", state)
		return 0, false
	}
	in.queued = false

	if root := next.root(); s.hw.AddressSpace() != root {
		s.hw.LoadAddressSpace(root)
		s.spaceLoads.Add(1)
	}
	s.hw.SetTrapStack(in.stackTop)

	in.state = StateRunning
	in.onCPU = true
	in.lastCPU = s.hw.ID()
	sp := in.sp
	next.mu.Unlock()

	s.current = next
	s.switches.Add(1)
	s.k.tracef("sched: cpu%d task %d in", s.hw.ID(), next.id)
	return sp, true
}

// enqueue puts a Ready task on the local run queue. The queue takes over the
// caller's reference.
func (s *LocalScheduler) enqueue(t *Task) {
	t.mu.Lock()
	bad := ""
	switch {
	case t.inner.state == StateZombie:
		bad = "enqueue of exited task"
	case t.inner.queued:
		bad = "task enqueued twice"
	}
	if bad == "" {
		t.inner.queued = true
	}
	t.mu.Unlock()
	if bad != "" {
		s.k.fatal(t.id, s.hw.ID(), "%s %d", bad, t.id)
		return
	}
	s.rq.Push(t)
}

func (s *LocalScheduler) currentID() TaskID {
	if s.current == nil {
		return 0
	}
	return s.current.id
}

func (s *LocalScheduler) String() string {
	return fmt.Sprintf("cpu%d: current %d queue %v", s.hw.ID(), s.currentID(), s.rq.IDs())
}
