package hal

import (
	"sync/atomic"
	"time"
)

// HostCPU is a processor emulated by the host: its control registers are
// plain atomics and its local timer is a time.Ticker.
type HostCPU struct {
	id int

	cr3  atomic.Uint64
	rsp0 atomic.Uintptr

	timer chan uint64
	ipi   chan struct{}
}

// NewHostCPU returns a CPU without a running timer; see StartTimer.
func NewHostCPU(id int) *HostCPU {
	return &HostCPU{
		id:    id,
		timer: make(chan uint64, 1),
		ipi:   make(chan struct{}, 1),
	}
}

func (c *HostCPU) ID() int { return c.id }

func (c *HostCPU) LoadAddressSpace(root uint64) { c.cr3.Store(root) }
func (c *HostCPU) AddressSpace() uint64         { return c.cr3.Load() }

func (c *HostCPU) SetTrapStack(top uintptr) { c.rsp0.Store(top) }
func (c *HostCPU) TrapStack() uintptr       { return c.rsp0.Load() }

func (c *HostCPU) Timer() <-chan uint64 { return c.timer }
func (c *HostCPU) IPI() <-chan struct{} { return c.ipi }

func (c *HostCPU) SendIPI() {
	select {
	case c.ipi <- struct{}{}:
	default:
	}
}

// Tick delivers one timer interrupt. A tick that finds the previous one still
// pending is coalesced, like a level-triggered local APIC timer.
func (c *HostCPU) Tick(seq uint64) {
	select {
	case c.timer <- seq:
	default:
	}
}

// StartTimer fires Tick at hz until stop is closed.
func (c *HostCPU) StartTimer(hz int, stop <-chan struct{}) {
	if hz <= 0 {
		hz = 100
	}
	go func() {
		t := time.NewTicker(time.Second / time.Duration(hz))
		defer t.Stop()
		var seq uint64
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				seq++
				c.Tick(seq)
			}
		}
	}()
}

type hostMachine struct {
	cpus []CPU
}

func (m *hostMachine) CPUs() []CPU { return m.cpus }

// NewMachine returns n host CPUs. Timers are not started.
func NewMachine(n int) Machine {
	if n <= 0 {
		n = 1
	}
	m := &hostMachine{}
	for i := 0; i < n; i++ {
		m.cpus = append(m.cpus, NewHostCPU(i))
	}
	return m
}
