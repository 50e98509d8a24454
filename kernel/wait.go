package kernel

// Exit terminates the calling task with code. It never returns.
func (c *Context) Exit(code uint64) {
	c.exit(code)
}

func (c *Context) exit(code uint64) {
	t, k := c.t, c.k

	for _, id := range t.Endpoints() {
		k.closeEndpoint(t, id, c.cpu)
	}

	t.exitMu.Lock()
	t.mu.Lock()
	t.inner.state = StateZombie
	t.inner.reason = BlockNone
	t.inner.exitCode = code
	waiters := t.inner.exitWaiters
	t.inner.exitWaiters = nil
	t.mu.Unlock()
	t.exitMu.Unlock()

	for _, w := range waiters {
		k.wake(w, t, c.cpu)
	}
	if len(waiters) == 0 && !k.parentAlive(t) {
		// Nobody can collect the code.
		k.sched.reap(t)
	}
	for _, child := range k.sched.zombieChildren(t.id) {
		k.sched.reap(child)
		child.put()
	}

	k.logf("task %d: exit %d", t.id, code)
	c.trap(trapExit)
}

func (k *Kernel) parentAlive(t *Task) bool {
	if t.parent == 0 {
		return false
	}
	p, ok := k.Lookup(t.parent)
	if !ok {
		return false
	}
	defer p.Put()
	return p.State() != StateZombie
}

// Waitpid blocks until task id has exited and returns its exit code. It
// reports false if id is not in the table, or names the caller.
func (c *Context) Waitpid(id TaskID) (uint64, bool) {
	c.enter()
	for {
		target, ok := c.k.Lookup(id)
		if !ok {
			return 0, false
		}
		if target == c.t {
			target.Put()
			return 0, false
		}

		target.exitMu.Lock()
		target.mu.Lock()
		zombie, code := target.inner.state == StateZombie, target.inner.exitCode
		target.mu.Unlock()
		if zombie {
			target.exitMu.Unlock()
			c.k.sched.reap(target)
			target.Put()
			return code, true
		}
		c.t.blockOn(target, BlockExit)
		target.mu.Lock()
		target.inner.exitWaiters = append(target.inner.exitWaiters, c.t)
		target.mu.Unlock()
		target.exitMu.Unlock()
		target.Put()

		c.block()
	}
}
