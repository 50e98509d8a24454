// Package echo is a user program that drains the channel endpoint it was
// handed and exits with the number of messages it received.
package echo

import (
	"fmt"

	"nucleus/kernel"
	"nucleus/ulib"
)

// Name is the program name images refer to.
const Name = "echo"

type Task struct {
	quiet bool
}

func New(quiet bool) *Task { return &Task{quiet: quiet} }

func (t *Task) Run(ctx *kernel.Context) {
	sys := ulib.New(ctx)
	ep := kernel.EndpointID(ctx.Arg())
	if ep == 0 {
		sys.Exit(1)
	}

	buf := make([]byte, 256)
	var count uint64
	for {
		n, st := sys.Recv(ep, buf)
		switch st {
		case kernel.StatusOK:
			count++
			if !t.quiet {
				ctx.Log(fmt.Sprintf("echo: %q", buf[:n]))
			}
		case kernel.StatusPeerClosed:
			sys.Close(ep)
			sys.Exit(count)
		default:
			ctx.Log(fmt.Sprintf("echo: recv: %s", st))
			sys.Exit(2)
		}
	}
}
