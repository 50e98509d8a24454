package kernel

import "errors"

var errKernelMemory = errors.New("kernel task has no user memory")

// Context is a running task's view of the kernel. It is only valid on the
// task's own goroutine.
type Context struct {
	k     *Kernel
	t     *Task
	cpu   *cpu
	frame TrapFrame
}

// TaskID returns the current task ID.
func (c *Context) TaskID() TaskID { return c.t.id }

func (c *Context) Kind() Kind { return c.t.kind }

// Arg is the start argument; for spawned user tasks, the handed-off endpoint.
func (c *Context) Arg() uint64 { return c.t.arg }

// CPU is the processor the task is currently running on.
func (c *Context) CPU() int { return c.cpuID() }

func (c *Context) cpuID() int {
	if c.cpu == nil {
		return -1
	}
	return c.cpu.hw.ID()
}

// Frame returns the register frame the task was last resumed with.
func (c *Context) Frame() TrapFrame { return c.frame }

// Yield gives up the rest of the time slice.
func (c *Context) Yield() {
	c.trap(trapYield)
}

// Log writes a line to the kernel log, prefixed with the task id.
func (c *Context) Log(msg string) {
	c.enter()
	c.k.logf("task %d: %s", c.t.id, msg)
}

// Shutdown stops the machine. It never returns.
func (c *Context) Shutdown(code uint64) {
	c.k.logf("task %d: shutdown %d", c.t.id, code)
	c.k.Shutdown(code)
	c.trap(trapExit)
}

// SpawnKernel starts a kernel task.
func (c *Context) SpawnKernel(prog Program, arg uint64) (TaskID, error) {
	c.enter()
	return c.k.SpawnKernel(prog, arg)
}

// Spawn loads image and starts it as a child user task. A non-zero handoff
// endpoint moves from the caller's ownership table to the child's and
// becomes the child's start argument. It returns 0 on any failure.
func (c *Context) Spawn(image []byte, handoff EndpointID) TaskID {
	c.enter()
	k := c.k
	if c.t.kind != KindUser || k.cfg.Loader == nil {
		return 0
	}
	img, err := k.cfg.Loader.Load(image)
	if err != nil {
		k.logf("task %d: spawn: %v", c.t.id, err)
		return 0
	}
	var owned []EndpointID
	if handoff != 0 {
		if !c.t.disown(handoff) {
			img.Space.Release()
			return 0
		}
		owned = append(owned, handoff)
	}

	id, err := k.sched.Spawn(SpawnRequest{
		Kind:      KindUser,
		Program:   img.Program,
		Space:     img.Space,
		Entry:     img.Entry,
		UserStack: img.StackTop,
		Arg:       uint64(handoff),
		Parent:    c.t.id,
		Owned:     owned,
	})
	if err != nil {
		k.logf("task %d: spawn %s: %v", c.t.id, img.Name, err)
		img.Space.Release()
		if handoff != 0 {
			c.t.own(handoff)
		}
		return 0
	}
	k.logf("task %d: spawned %s as task %d", c.t.id, img.Name, id)
	return id
}

// Load copies n bytes out of the task's user memory. A bad address faults
// the task.
func (c *Context) Load(addr, n uint64) []byte {
	c.enter()
	if c.t.space == nil {
		panic(&Fault{Addr: addr, Len: n, Err: errKernelMemory})
	}
	b, err := c.t.space.CopyIn(addr, n)
	if err != nil {
		panic(&Fault{Addr: addr, Len: n, Err: err})
	}
	return b
}

// Store copies b into the task's user memory. A bad address faults the task.
func (c *Context) Store(addr uint64, b []byte) {
	c.enter()
	if c.t.space == nil {
		panic(&Fault{Addr: addr, Len: uint64(len(b)), Write: true, Err: errKernelMemory})
	}
	if err := c.t.space.CopyOut(addr, b); err != nil {
		panic(&Fault{Addr: addr, Len: uint64(len(b)), Write: true, Err: err})
	}
}

// ChannelCreate allocates a channel with the given capacity (0 selects the
// default) and gives the caller both endpoints.
func (c *Context) ChannelCreate(capacity uint64) (send, recv EndpointID) {
	c.enter()
	s, r := c.k.endpoints.create(clampCapacity(capacity))
	c.t.own(s.ID, r.ID)
	return s.ID, r.ID
}

// ChannelSend queues a copy of msg, blocking while the channel is full.
func (c *Context) ChannelSend(id EndpointID, msg []byte) Status {
	c.enter()
	if len(msg) > MaxMessageSize {
		return StatusMsgTooLarge
	}
	buf := make([]byte, len(msg))
	copy(buf, msg)
	return c.send(id, buf)
}

// send takes ownership of msg.
func (c *Context) send(id EndpointID, msg []byte) Status {
	for {
		ep, st := c.k.endpoints.resolve(c.t, id, DirSend)
		if st != StatusOK {
			return st
		}
		st, woken := ep.ch.send(c.t, msg)
		c.wakeAll(woken, ep.ch)
		if st != StatusChannelFull {
			return st
		}
		c.block()
	}
}

// ChannelRecv dequeues the oldest message, blocking while the channel is
// empty. At most len(buf) bytes are copied; the rest of a longer message is
// discarded.
func (c *Context) ChannelRecv(id EndpointID, buf []byte) (int, Status) {
	c.enter()
	msg, st := c.recv(id)
	if st != StatusOK {
		return 0, st
	}
	return copy(buf, msg), StatusOK
}

func (c *Context) recv(id EndpointID) ([]byte, Status) {
	for {
		ep, st := c.k.endpoints.resolve(c.t, id, DirRecv)
		if st != StatusOK {
			return nil, st
		}
		msg, st, woken := ep.ch.recv(c.t)
		c.wakeAll(woken, ep.ch)
		if st != StatusChannelFull {
			return msg, st
		}
		c.block()
	}
}

// ChannelClose closes one endpoint the caller owns.
func (c *Context) ChannelClose(id EndpointID) Status {
	c.enter()
	if !c.k.closeEndpoint(c.t, id, c.cpu) {
		return StatusInvalidEndpoint
	}
	return StatusOK
}

// closeEndpoint removes id from t and from the endpoint table, and wakes
// anything blocked on the channel.
func (k *Kernel) closeEndpoint(t *Task, id EndpointID, from *cpu) bool {
	if !t.disown(id) {
		return false
	}
	ep, ok := k.endpoints.remove(id)
	if !ok {
		return false
	}
	woken, freed := ep.ch.close(ep.Dir)
	for _, w := range woken {
		k.wake(w, ep.ch, from)
	}
	if freed {
		k.tracef("ipc: channel of endpoint %d freed", id)
	}
	return true
}

func (c *Context) wakeAll(ts []*Task, key any) {
	for _, t := range ts {
		c.k.wake(t, key, c.cpu)
	}
}
