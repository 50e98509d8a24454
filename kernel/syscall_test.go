package kernel

import (
	"encoding/binary"
	"fmt"
	"testing"

	"nucleus/hal"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		ev   hal.KeyEvent
		want [KeyEventSize]byte
	}{
		{hal.KeyEvent{Rune: 'a', Press: true}, [2]byte{KeyTypeChar, 'a'}},
		{hal.KeyEvent{Code: hal.KeyEnter, Press: true}, [2]byte{KeyTypeEnter, 0}},
		{hal.KeyEvent{Code: hal.KeyBackspace, Press: true}, [2]byte{KeyTypeBackspace, 0}},
		{hal.KeyEvent{Code: hal.KeyEscape, Press: true}, [2]byte{KeyTypeEscape, 0}},
		{hal.KeyEvent{Code: hal.KeyDown, Press: true}, [2]byte{KeyTypeDown, 0}},
		{hal.KeyEvent{Rune: 'é', Press: true}, [2]byte{KeyTypeChar, 0}},
	}
	for _, tt := range tests {
		if got := EncodeKey(tt.ev); got != tt.want {
			t.Fatalf("EncodeKey(%+v) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func spawnUserTask(t *testing.T, k *Kernel, space *testSpace, parent TaskID, fn func(*Context)) TaskID {
	t.Helper()
	id, err := k.sched.Spawn(SpawnRequest{
		Kind:      KindUser,
		Program:   ProgramFunc(fn),
		Space:     space,
		Entry:     testUserBase,
		UserStack: testUserBase + testUserSize,
		Parent:    parent,
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	return id
}

func readUint64(s *testSpace, addr uint64) uint64 {
	b, err := s.CopyIn(addr, 8)
	if err != nil {
		return ^uint64(0)
	}
	return binary.LittleEndian.Uint64(b)
}

func TestSyscallArgumentValidation(t *testing.T) {
	k, h := newTestKernel(t, 1, Config{})
	space := newTestSpace(0x1000)

	const (
		out0    = testUserBase
		out1    = testUserBase + 8
		buf     = testUserBase + 0x100
		outside = testUserBase + testUserSize
	)
	type result struct {
		name      string
		got, want uint64
	}
	var results []result
	call := func(c *Context, name string, want, num, a0, a1, a2, a3 uint64) uint64 {
		got := c.Syscall(num, a0, a1, a2, a3)
		results = append(results, result{name, got, want})
		return got
	}

	spawnUserTask(t, k, space, 0, func(c *Context) {
		ok, bad := uint64(StatusOK), uint64(StatusInvalidArgs)
		create, send, recv := uint64(SysChannelCreate), uint64(SysChannelSend), uint64(SysChannelRecv)

		call(c, "create null", bad, create, 0, out1, 0, 0)
		call(c, "create unmapped", bad, create, out0, outside, 0, 0)
		call(c, "create kernel half", bad, create, out0, 0xffff_8000_0000_0000, 0, 0)
		call(c, "create", ok, create, out0, out1, 1, 0)
		s, r := readUint64(space, out0), readUint64(space, out1)

		call(c, "send oversized", uint64(StatusMsgTooLarge), send, s, buf, MaxMessageSize+1, 0)
		call(c, "send wrapping", bad, send, s, ^uint64(0)-2, 8, 0)
		call(c, "send unmapped", bad, send, s, outside, 4, 0)
		c.Store(buf, []byte("hello"))
		call(c, "send", ok, send, s, buf, 5, 0)
		call(c, "recv bad count ptr", bad, recv, r, buf, 16, 0)
		call(c, "recv zero capacity", bad, recv, r, buf, 0, out0)
		call(c, "recv truncated", ok, recv, r, buf+0x10, 2, out0)
		got, _ := space.CopyIn(buf+0x10, 3)
		results = append(results, result{"recv bytes", uint64(got[0])<<8 | uint64(got[1]), 'h'<<8 | 'e'})
		results = append(results, result{"recv count", readUint64(space, out0), 2})
		results = append(results, result{"recv tail untouched", uint64(got[2]), 0})

		call(c, "send zero length", ok, send, s, 0, 0, 0)
		call(c, "recv zero length", ok, recv, r, buf, 8, out0)
		results = append(results, result{"zero length count", readUint64(space, out0), 0})

		call(c, "close", ok, uint64(SysChannelClose), s, 0, 0, 0)
		call(c, "close again", uint64(StatusInvalidEndpoint), uint64(SysChannelClose), s, 0, 0, 0)
		call(c, "read key bad ptr", 1, uint64(SysReadKey), 0, 0, 0, 0)
		call(c, "waitpid self", 1, uint64(SysWaitpid), uint64(c.TaskID()), out0, 0, 0)
		call(c, "waitpid missing", 1, uint64(SysWaitpid), 999, out0, 0, 0)
		call(c, "waitpid bad ptr", 1, uint64(SysWaitpid), 999, 0, 0, 0)
		call(c, "spawn without loader", 0, uint64(SysSpawn), buf, 5, 0, 0)
		call(c, "unknown", SysBad, 99, 0, 0, 0, 0)
		call(c, "debug log", 0, uint64(SysDebugLog), 0x2a, 7, 0, 0)
		call(c, "yield", 0, uint64(SysYield), 0, 0, 0, 0)
		c.Syscall(uint64(SysShutdown), 4, 0, 0, 0)
	})

	if err := runKernel(t, k); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if k.ExitCode() != 4 {
		t.Fatalf("ExitCode() = %d, want 4", k.ExitCode())
	}
	for _, r := range results {
		if r.got != r.want {
			t.Fatalf("%s = %#x, want %#x", r.name, r.got, r.want)
		}
	}
	if !h.log.contains("DBG[0x7]: 0x2a") {
		t.Fatalf("debug log line missing")
	}
}

func TestKernelTaskSyscallsRejectPointers(t *testing.T) {
	k, _ := newTestKernel(t, 1, Config{Loader: &testLoader{}})
	var create, spawn uint64
	spawnKernelTask(t, k, SpawnRequest{}, func(c *Context) {
		create = c.Syscall(uint64(SysChannelCreate), testUserBase, testUserBase+8, 0, 0)
		spawn = c.Syscall(uint64(SysSpawn), testUserBase, 4, 0, 0)
		c.Shutdown(0)
	})
	if err := runKernel(t, k); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if Status(create) != StatusInvalidArgs || spawn != 0 {
		t.Fatalf("create = %s, spawn = %d, want %s, 0", Status(create), spawn, StatusInvalidArgs)
	}
}

func TestSpawnHandsOffEndpoint(t *testing.T) {
	loader := &testLoader{progs: map[string]Program{}}
	k, _ := newTestKernel(t, 2, Config{Loader: loader})

	var (
		childFrame TrapFrame
		childArg   uint64
	)
	loader.progs["child"] = ProgramFunc(func(c *Context) {
		childFrame = c.Frame()
		childArg = c.Arg()
		const (
			buf   = testUserBase + 0x100
			count = testUserBase
		)
		st := c.Syscall(uint64(SysChannelRecv), c.Arg(), buf, 64, count)
		if Status(st) != StatusOK {
			c.Syscall(uint64(SysExit), 100+st, 0, 0, 0)
		}
		c.Syscall(uint64(SysExit), binary.LittleEndian.Uint64(c.Load(count, 8)), 0, 0, 0)
	})

	space := newTestSpace(0x1000)
	var (
		childID        uint64
		recvEP         uint64
		closeHandoff   uint64
		sendStatus     uint64
		waitStatus     uint64
		code           uint64
		badImage       uint64
		badHandoff     uint64
		parentOwnsSend bool
	)
	spawnUserTask(t, k, space, 0, func(c *Context) {
		const (
			out0  = testUserBase
			out1  = testUserBase + 8
			image = testUserBase + 0x100
			msg   = testUserBase + 0x200
		)
		c.Syscall(uint64(SysChannelCreate), out0, out1, 0, 0)
		send, recv := readUint64(space, out0), readUint64(space, out1)
		recvEP = recv

		c.Store(image, []byte("child"))
		childID = c.Syscall(uint64(SysSpawn), image, 5, recv, 0)
		closeHandoff = c.Syscall(uint64(SysChannelClose), recv, 0, 0, 0)

		c.Store(msg, []byte("ping!"))
		sendStatus = c.Syscall(uint64(SysChannelSend), send, msg, 5, 0)
		waitStatus = c.Syscall(uint64(SysWaitpid), childID, out0, 0, 0)
		code = readUint64(space, out0)

		c.Store(image, []byte("nope!"))
		badImage = c.Syscall(uint64(SysSpawn), image, 5, 0, 0)
		c.Store(image, []byte("child"))
		badHandoff = c.Syscall(uint64(SysSpawn), image, 5, 999, 0)
		parentOwnsSend = c.t.owns(EndpointID(send))

		c.Syscall(uint64(SysShutdown), 0, 0, 0, 0)
	})

	if err := runKernel(t, k); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if childID == 0 {
		t.Fatalf("Spawn() = 0, want a task id")
	}
	if childArg != recvEP {
		t.Fatalf("child Arg() = %d, want handed-off endpoint %d", childArg, recvEP)
	}
	if !childFrame.UserMode() || childFrame.RIP != testUserBase {
		t.Fatalf("child frame = %+v, want user mode at entry", childFrame)
	}
	if Status(closeHandoff) != StatusInvalidEndpoint {
		t.Fatalf("parent close of handed-off endpoint = %s, want %s", Status(closeHandoff), StatusInvalidEndpoint)
	}
	if Status(sendStatus) != StatusOK {
		t.Fatalf("send = %s, want %s", Status(sendStatus), StatusOK)
	}
	if waitStatus != 0 || code != 5 {
		t.Fatalf("waitpid = %d code %d, want 0 code 5", waitStatus, code)
	}
	if badImage != 0 || badHandoff != 0 {
		t.Fatalf("bad spawns = %d, %d, want 0, 0", badImage, badHandoff)
	}
	if !parentOwnsSend {
		t.Fatalf("parent lost its send endpoint")
	}

	loader.mu.Lock()
	defer loader.mu.Unlock()
	if len(loader.spaces) != 2 {
		t.Fatalf("loader built %d spaces, want 2", len(loader.spaces))
	}
	if n := loader.spaces[1].releases.Load(); n != 1 {
		t.Fatalf("space of failed spawn released %d times, want 1", n)
	}
}

func TestReadKeySyscall(t *testing.T) {
	k, _ := newTestKernel(t, 1, Config{})
	space := newTestSpace(0x1000)

	var ret uint64
	id := spawnUserTask(t, k, space, 0, func(c *Context) {
		ret = c.Syscall(uint64(SysReadKey), testUserBase, 0, 0, 0)
		c.Syscall(uint64(SysShutdown), 0, 0, 0, 0)
	})
	task := lookup(t, k, id)
	k.Key(hal.KeyEvent{Rune: 'q', Press: true})

	if err := runKernel(t, k); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, _ := space.CopyIn(testUserBase, KeyEventSize)
	if ret != 0 || fmt.Sprint(got) != fmt.Sprint([]byte{KeyTypeChar, 'q'}) {
		t.Fatalf("read_key = %d %v, want 0 [%d %d]", ret, got, KeyTypeChar, 'q')
	}
	if task.Kind() != KindUser {
		t.Fatalf("Kind() = %s, want %s", task.Kind(), KindUser)
	}
}

func TestSysnoString(t *testing.T) {
	if SysChannelRecv.String() != "channel_recv" || Sysno(99).String() != "unknown" {
		t.Fatalf("Sysno.String() = %q, %q", SysChannelRecv, Sysno(99))
	}
}
