// Package ulib is the userland side of the syscall ABI. Arguments are staged
// in the task's own user memory and passed by address, the way a ring-3
// program calls the kernel.
package ulib

import (
	"encoding/binary"
	"errors"

	"nucleus/kernel"
	"nucleus/mm"
)

// Scratch layout at the bottom of the user heap: two result words, then a
// data buffer.
const (
	out0       = mm.UserHeapBase
	out1       = mm.UserHeapBase + 8
	scratch    = mm.UserHeapBase + 16
	scratchMax = mm.UserHeapSize - 16
)

var ErrTooLarge = errors.New("argument does not fit the scratch area")

// Sys issues system calls for one task.
type Sys struct {
	c *kernel.Context
}

func New(c *kernel.Context) *Sys { return &Sys{c: c} }

// Context returns the underlying task context.
func (s *Sys) Context() *kernel.Context { return s.c }

func (s *Sys) call(n kernel.Sysno, a0, a1, a2, a3 uint64) uint64 {
	return s.c.Syscall(uint64(n), a0, a1, a2, a3)
}

func (s *Sys) word(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(s.c.Load(addr, 8))
}

func (s *Sys) stage(b []byte) (uint64, error) {
	if len(b) > scratchMax {
		return 0, ErrTooLarge
	}
	s.c.Store(scratch, b)
	return scratch, nil
}

func (s *Sys) Exit(code uint64) {
	s.call(kernel.SysExit, code, 0, 0, 0)
}

// Spawn starts image as a child task, handing it ep (0 for none). It returns
// 0 on failure.
func (s *Sys) Spawn(image []byte, ep kernel.EndpointID) kernel.TaskID {
	ptr, err := s.stage(image)
	if err != nil {
		return 0
	}
	return kernel.TaskID(s.call(kernel.SysSpawn, ptr, uint64(len(image)), uint64(ep), 0))
}

// ReadKey blocks for the next key press and returns its encoded type and
// character.
func (s *Sys) ReadKey() (typ, ch uint8, ok bool) {
	if s.call(kernel.SysReadKey, scratch, 0, 0, 0) != 0 {
		return 0, 0, false
	}
	b := s.c.Load(scratch, kernel.KeyEventSize)
	return b[0], b[1], true
}

func (s *Sys) Yield() {
	s.call(kernel.SysYield, 0, 0, 0, 0)
}

func (s *Sys) ChannelCreate(capacity uint64) (send, recv kernel.EndpointID, st kernel.Status) {
	st = kernel.Status(s.call(kernel.SysChannelCreate, out0, out1, capacity, 0))
	if st != kernel.StatusOK {
		return 0, 0, st
	}
	return kernel.EndpointID(s.word(out0)), kernel.EndpointID(s.word(out1)), st
}

func (s *Sys) Send(ep kernel.EndpointID, msg []byte) kernel.Status {
	if len(msg) > kernel.MaxMessageSize {
		return kernel.StatusMsgTooLarge
	}
	var ptr uint64
	if len(msg) > 0 {
		ptr, _ = s.stage(msg)
	}
	return kernel.Status(s.call(kernel.SysChannelSend, uint64(ep), ptr, uint64(len(msg)), 0))
}

// Recv receives into buf and returns the number of bytes written.
func (s *Sys) Recv(ep kernel.EndpointID, buf []byte) (int, kernel.Status) {
	n := uint64(len(buf))
	if n > scratchMax {
		n = scratchMax
	}
	st := kernel.Status(s.call(kernel.SysChannelRecv, uint64(ep), scratch, n, out0))
	if st != kernel.StatusOK {
		return 0, st
	}
	got := s.word(out0)
	if got == 0 {
		return 0, st
	}
	return copy(buf, s.c.Load(scratch, got)), st
}

func (s *Sys) Close(ep kernel.EndpointID) kernel.Status {
	return kernel.Status(s.call(kernel.SysChannelClose, uint64(ep), 0, 0, 0))
}

func (s *Sys) TransferDisplay(id kernel.TaskID) kernel.DisplayStatus {
	return kernel.DisplayStatus(s.call(kernel.SysTransferDisplay, uint64(id), 0, 0, 0))
}

func (s *Sys) DebugLog(value, tag uint64) {
	s.call(kernel.SysDebugLog, value, tag, 0, 0)
}

// Waitpid waits for task id to exit and returns its exit code.
func (s *Sys) Waitpid(id kernel.TaskID) (uint64, bool) {
	if s.call(kernel.SysWaitpid, uint64(id), out0, 0, 0) != 0 {
		return 0, false
	}
	return s.word(out0), true
}

func (s *Sys) Shutdown(code uint64) {
	s.call(kernel.SysShutdown, code, 0, 0, 0)
}
