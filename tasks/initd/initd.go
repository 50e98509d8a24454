// Package initd is the first user task. It spawns the boot programs, feeds
// the echo server over a channel, collects every child's exit code and
// finally powers the machine off.
package initd

import (
	"fmt"

	"nucleus/kernel"
	"nucleus/mm"
	"nucleus/tasks/echo"
	"nucleus/tasks/yielder"
	"nucleus/ulib"
)

// Name is the program name images refer to.
const Name = "initd"

const echoCapacity = 4

type Config struct {
	Yielders int
	Messages int
	// Interactive keeps init reading keys until Escape or 'q' before it
	// shuts down.
	Interactive bool
}

type Task struct {
	cfg Config
}

func New(cfg Config) *Task { return &Task{cfg: cfg} }

func (t *Task) Run(ctx *kernel.Context) {
	sys := ulib.New(ctx)
	logf := func(format string, args ...any) { ctx.Log(fmt.Sprintf("initd: "+format, args...)) }

	send, recv, st := sys.ChannelCreate(echoCapacity)
	if st != kernel.StatusOK {
		logf("channel create: %s", st)
		sys.Shutdown(1)
	}
	echoID := sys.Spawn(mm.BuildImage(echo.Name, nil), recv)
	if echoID == 0 {
		logf("spawn %s failed", echo.Name)
		sys.Shutdown(1)
	}

	var children []kernel.TaskID
	for i := 0; i < t.cfg.Yielders; i++ {
		id := sys.Spawn(mm.BuildImage(yielder.Name, nil), 0)
		if id == 0 {
			logf("spawn %s failed", yielder.Name)
			continue
		}
		children = append(children, id)
	}

	for i := 1; i <= t.cfg.Messages; i++ {
		if st := sys.Send(send, []byte(fmt.Sprintf("hello %d", i))); st != kernel.StatusOK {
			logf("send %d: %s", i, st)
			break
		}
	}
	sys.Close(send)

	failed := false
	code, ok := sys.Waitpid(echoID)
	switch {
	case !ok:
		logf("waitpid %d failed", echoID)
		failed = true
	case code != uint64(t.cfg.Messages):
		logf("%s received %d of %d messages", echo.Name, code, t.cfg.Messages)
		failed = true
	default:
		logf("%s delivered %d messages", echo.Name, code)
	}
	for _, id := range children {
		if code, ok := sys.Waitpid(id); !ok || code != 0 {
			logf("task %d exited %d (ok=%t)", id, code, ok)
			failed = true
		}
	}

	if st := sys.TransferDisplay(ctx.TaskID()); st != kernel.DisplayOK {
		logf("display: %s", st)
	}

	if t.cfg.Interactive {
		logf("press keys; Esc or q to power off")
		for {
			typ, ch, ok := sys.ReadKey()
			if !ok || typ == kernel.KeyTypeEscape || (typ == kernel.KeyTypeChar && ch == 'q') {
				break
			}
			if typ == kernel.KeyTypeChar && ch != 0 {
				logf("key %q", ch)
			} else {
				logf("key type %d", typ)
			}
		}
	}

	if failed {
		sys.Shutdown(1)
	}
	sys.Shutdown(0)
}
