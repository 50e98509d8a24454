package kernel

import (
	"encoding/binary"

	"nucleus/hal"
)

// Sysno is a system call number of the user ABI.
type Sysno uint64

const (
	SysExit            Sysno = 3
	SysSpawn           Sysno = 4
	SysReadKey         Sysno = 5
	SysYield           Sysno = 6
	SysChannelCreate   Sysno = 9
	SysChannelSend     Sysno = 10
	SysChannelRecv     Sysno = 11
	SysChannelClose    Sysno = 12
	SysTransferDisplay Sysno = 13
	SysDebugLog        Sysno = 16
	SysWaitpid         Sysno = 17
	SysShutdown        Sysno = 21
)

func (n Sysno) String() string {
	switch n {
	case SysExit:
		return "exit"
	case SysSpawn:
		return "spawn"
	case SysReadKey:
		return "read_key"
	case SysYield:
		return "yield"
	case SysChannelCreate:
		return "channel_create"
	case SysChannelSend:
		return "channel_send"
	case SysChannelRecv:
		return "channel_recv"
	case SysChannelClose:
		return "channel_close"
	case SysTransferDisplay:
		return "transfer_display"
	case SysDebugLog:
		return "debug_log"
	case SysWaitpid:
		return "waitpid"
	case SysShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// SysBad is returned for unknown system call numbers.
const SysBad = ^uint64(0)

// Spawn images larger than this are rejected before being copied.
const maxImageSize = 64 << 20

// userLimit is the first address above the user half.
const userLimit uint64 = 0x0000_8000_0000_0000

// Key event encoding written by ReadKey: a type byte and a character byte.
const (
	KeyTypeChar uint8 = iota
	KeyTypeEnter
	KeyTypeBackspace
	KeyTypeTab
	KeyTypeEscape
	KeyTypeLeft
	KeyTypeRight
	KeyTypeUp
	KeyTypeDown
)

// KeyEventSize is the size of an encoded key event.
const KeyEventSize = 2

// EncodeKey converts a key press to its ABI encoding.
func EncodeKey(ev hal.KeyEvent) [KeyEventSize]byte {
	var typ uint8
	switch ev.Code {
	case hal.KeyEnter:
		typ = KeyTypeEnter
	case hal.KeyBackspace:
		typ = KeyTypeBackspace
	case hal.KeyTab:
		typ = KeyTypeTab
	case hal.KeyEscape:
		typ = KeyTypeEscape
	case hal.KeyLeft:
		typ = KeyTypeLeft
	case hal.KeyRight:
		typ = KeyTypeRight
	case hal.KeyUp:
		typ = KeyTypeUp
	case hal.KeyDown:
		typ = KeyTypeDown
	default:
		typ = KeyTypeChar
	}
	var ch byte
	if typ == KeyTypeChar && ev.Rune > 0 && ev.Rune < 0x80 {
		ch = byte(ev.Rune)
	}
	return [KeyEventSize]byte{typ, ch}
}

// userPtr reports whether [ptr, ptr+n) is a valid, mapped range of the
// caller's user memory.
func (c *Context) userPtr(ptr, n uint64) bool {
	if c.t.space == nil || ptr == 0 || n == 0 {
		return false
	}
	end := ptr + n
	if end < ptr || end > userLimit {
		return false
	}
	return c.t.space.Mapped(ptr, n)
}

func (c *Context) storeUint64(addr, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	c.Store(addr, b[:])
}

// Syscall is the system call entry. Arguments arrive in the order of the
// RDI, RSI, RDX, R10 registers.
func (c *Context) Syscall(num, a0, a1, a2, a3 uint64) uint64 {
	c.frame.RAX, c.frame.RDI, c.frame.RSI, c.frame.RDX = num, a0, a1, a2
	c.enter()

	switch Sysno(num) {
	case SysExit:
		c.Exit(a0)
		return 0

	case SysSpawn:
		if a1 == 0 || a1 > maxImageSize || !c.userPtr(a0, a1) {
			return 0
		}
		return uint64(c.Spawn(c.Load(a0, a1), EndpointID(a2)))

	case SysReadKey:
		if !c.userPtr(a0, KeyEventSize) {
			return 1
		}
		ev := EncodeKey(c.ReadKey())
		c.Store(a0, ev[:])
		return 0

	case SysYield:
		c.Yield()
		return 0

	case SysChannelCreate:
		if !c.userPtr(a0, 8) || !c.userPtr(a1, 8) {
			return uint64(StatusInvalidArgs)
		}
		send, recv := c.ChannelCreate(a2)
		c.storeUint64(a0, uint64(send))
		c.storeUint64(a1, uint64(recv))
		return uint64(StatusOK)

	case SysChannelSend:
		if a2 > MaxMessageSize {
			return uint64(StatusMsgTooLarge)
		}
		if a2 > 0 && !c.userPtr(a1, a2) {
			return uint64(StatusInvalidArgs)
		}
		var msg []byte
		if a2 > 0 {
			msg = c.Load(a1, a2)
		}
		return uint64(c.send(EndpointID(a0), msg))

	case SysChannelRecv:
		if !c.userPtr(a1, a2) || !c.userPtr(a3, 8) {
			return uint64(StatusInvalidArgs)
		}
		msg, st := c.recv(EndpointID(a0))
		if st != StatusOK {
			return uint64(st)
		}
		if uint64(len(msg)) > a2 {
			msg = msg[:a2]
		}
		c.Store(a1, msg)
		c.storeUint64(a3, uint64(len(msg)))
		return uint64(StatusOK)

	case SysChannelClose:
		return uint64(c.ChannelClose(EndpointID(a0)))

	case SysTransferDisplay:
		return uint64(c.TransferDisplay(TaskID(a0)))

	case SysDebugLog:
		c.k.logf("DBG[%#x]: %#x", a1, a0)
		return 0

	case SysWaitpid:
		if !c.userPtr(a1, 8) {
			return 1
		}
		code, ok := c.Waitpid(TaskID(a0))
		if !ok {
			return 1
		}
		c.storeUint64(a1, code)
		return 0

	case SysShutdown:
		c.Shutdown(a0)
		return 0

	default:
		c.k.tracef("syscall: task %d: unknown number %d", c.t.id, num)
		return SysBad
	}
}
