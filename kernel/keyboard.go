package kernel

import (
	"sync"

	"nucleus/hal"
)

const keyBufferSize = 64

// keyboard buffers key presses from the HAL and parks ReadKey callers.
type keyboard struct {
	mu      sync.Mutex
	buf     []hal.KeyEvent
	dropped uint64
	waiters []*Task
}

func newKeyboard() *keyboard { return &keyboard{} }

// push queues ev and returns the waiters to wake. The oldest event is
// dropped when the buffer is full.
func (kb *keyboard) push(ev hal.KeyEvent) []*Task {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if len(kb.buf) == keyBufferSize {
		kb.buf = kb.buf[1:]
		kb.dropped++
	}
	kb.buf = append(kb.buf, ev)
	w := kb.waiters
	kb.waiters = nil
	return w
}

// pop takes the oldest event, or blocks t on the keyboard when none is
// buffered. ok=false means t is now Blocked and must trap.
func (kb *keyboard) pop(t *Task) (hal.KeyEvent, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if len(kb.buf) == 0 {
		t.blockOn(kb, BlockKey)
		kb.waiters = append(kb.waiters, t)
		return hal.KeyEvent{}, false
	}
	ev := kb.buf[0]
	kb.buf = kb.buf[1:]
	return ev, true
}

// Key delivers one key press as if raised by the keyboard interrupt.
func (k *Kernel) Key(ev hal.KeyEvent) {
	if !ev.Press {
		return
	}
	for _, t := range k.keys.push(ev) {
		k.wake(t, k.keys, nil)
	}
}

// pumpKeys feeds HAL keyboard events to Key until the kernel stops.
func (k *Kernel) pumpKeys() {
	var events <-chan hal.KeyEvent
	if in := k.h.Input(); in != nil {
		if kbd := in.Keyboard(); kbd != nil {
			events = kbd.Events()
		}
	}
	for {
		select {
		case <-k.done:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			k.Key(ev)
		}
	}
}

// ReadKey returns the next key press, blocking until one arrives.
func (c *Context) ReadKey() hal.KeyEvent {
	c.enter()
	for {
		if ev, ok := c.k.keys.pop(c.t); ok {
			return ev
		}
		c.block()
	}
}
