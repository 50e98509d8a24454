// Package yielder is a user program that yields a fixed number of times and
// reports how often it changed CPU.
package yielder

import (
	"nucleus/kernel"
	"nucleus/ulib"
)

// Name is the program name images refer to.
const Name = "yielder"

const tagMigrations = 0x71e1d

type Task struct {
	rounds int
}

func New(rounds int) *Task { return &Task{rounds: rounds} }

func (t *Task) Run(ctx *kernel.Context) {
	sys := ulib.New(ctx)
	last := ctx.CPU()
	var moved uint64
	for i := 0; i < t.rounds; i++ {
		sys.Yield()
		if cpu := ctx.CPU(); cpu != last {
			moved++
			last = cpu
		}
	}
	sys.DebugLog(moved, tagMigrations)
	sys.Exit(0)
}
