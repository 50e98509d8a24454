package app

import (
	"context"
	"errors"
	"fmt"

	"nucleus/hal"
	"nucleus/internal/bootcfg"
	"nucleus/internal/buildinfo"
	"nucleus/kernel"
	"nucleus/mm"
	"nucleus/tasks/echo"
	"nucleus/tasks/initd"
	"nucleus/tasks/yielder"
)

// ErrInitFailed is returned by the step function when the system powered
// off with a non-zero exit code.
var ErrInitFailed = errors.New("init reported failure")

// Physical memory handed to the frame allocator.
const (
	physBase   = 0x0010_0000
	physFrames = 1 << 16

	yielderRounds = 16
)

// Config selects what the system boots.
type Config struct {
	Boot bootcfg.Config
	// HoldOnPanic keeps the step function returning nil after a kernel
	// panic, so a window keeps showing the panic screen.
	HoldOnPanic bool
}

type system struct {
	k       *kernel.Kernel
	con     *console
	loader  *mm.Loader
	errc    chan error
	cancel  context.CancelFunc
	holdErr bool
}

// New boots the OS on h and returns the host step function. The step
// returns hal.ErrShutdown once the kernel powered off cleanly.
func New(h hal.HAL, cfg Config) func() error {
	s, err := newSystem(h, cfg)
	if err != nil {
		h.Logger().WriteLineString(fmt.Sprintf("boot: %v", err))
		return func() error { return err }
	}
	return s.step
}

func newSystem(h hal.HAL, cfg Config) (*system, error) {
	var con *console
	kh := h
	if d := h.Display(); d != nil {
		if con = newConsole(d.Framebuffer()); con != nil {
			kh = consoleHAL{HAL: h, log: teeLogger{h.Logger(), con}}
		}
	}
	log := kh.Logger()
	log.WriteLineString(fmt.Sprintf("nucleus %s: %s", buildinfo.Short(), cfg.Boot))

	frames := mm.NewFrames(physBase, physFrames)
	ks, err := mm.NewKernelSpace(frames)
	if err != nil {
		return nil, err
	}
	loader := mm.NewLoader(frames, ks)

	k, err := kernel.New(kh, kernel.Config{
		StackSize:  int(cfg.Boot.StackSize),
		Loader:     loader,
		KernelRoot: ks.Root(),
		Trace:      cfg.Boot.Trace,
	})
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	installPanicHandler(k, h, con)

	loader.Register(initd.Name, initd.New(initd.Config{
		Yielders:    cfg.Boot.Yielders,
		Messages:    cfg.Boot.Messages,
		Interactive: !cfg.Boot.Headless,
	}))
	loader.Register(echo.Name, echo.New(false))
	loader.Register(yielder.Name, yielder.New(yielderRounds))

	img, err := loader.LoadProgram(cfg.Boot.Init)
	if err != nil {
		return nil, fmt.Errorf("init %q: %w", cfg.Boot.Init, err)
	}
	id, err := k.SpawnImage(img, 0)
	if err != nil {
		return nil, fmt.Errorf("init %q: %w", cfg.Boot.Init, err)
	}
	k.SetDisplayOwner(id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &system{
		k:       k,
		con:     con,
		loader:  loader,
		errc:    make(chan error, 1),
		cancel:  cancel,
		holdErr: cfg.HoldOnPanic,
	}
	go func() { s.errc <- k.Run(ctx) }()
	return s, nil
}

// step runs once per host frame.
func (s *system) step() error {
	if s.con != nil {
		s.con.flush()
	}
	select {
	case err := <-s.errc:
		s.cancel()
		if err == nil {
			if code := s.k.ExitCode(); code != 0 {
				return fmt.Errorf("%w: exit code %d", ErrInitFailed, code)
			}
			return hal.ErrShutdown
		}
		if errors.Is(err, kernel.ErrHalted) && s.holdErr {
			s.errc = nil
			return nil
		}
		return err
	default:
		return nil
	}
}
