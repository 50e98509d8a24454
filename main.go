package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"nucleus/app"
	"nucleus/hal"
	"nucleus/internal/bootcfg"
)

func main() {
	var (
		configPath string
		cmdline    string
		cpus       int
		hz         int
		headless   bool
		trace      bool
		ticks      uint64
	)
	flag.StringVar(&configPath, "config", "", "Boot config YAML file.")
	flag.StringVar(&cmdline, "cmdline", "", "Kernel command line, e.g. \"cpus=4 sched.trace\".")
	flag.IntVar(&cpus, "cpus", 0, "Number of CPUs (overrides config).")
	flag.IntVar(&hz, "hz", 0, "Per-CPU timer rate (overrides config).")
	flag.BoolVar(&headless, "headless", false, "Run without a window.")
	flag.BoolVar(&trace, "trace", false, "Log every context switch.")
	flag.Uint64Var(&ticks, "ticks", 0, "Stop after N host steps (0 = run until shutdown).")
	flag.Parse()

	cfg, err := bootConfig(configPath, cmdline)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cpus":
			cfg.CPUs = cpus
		case "hz":
			cfg.Hz = hz
		case "headless":
			cfg.Headless = headless
		case "trace":
			cfg.Trace = trace
		case "ticks":
			cfg.Ticks = ticks
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	host := hal.HostConfig{CPUs: cfg.CPUs, Hz: cfg.Hz}
	if cfg.Headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err := hal.RunHeadless(ctx, func(h hal.HAL) func() error {
			return app.New(h, app.Config{Boot: cfg})
		}, hal.HeadlessConfig{Host: host, Ticks: cfg.Ticks})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(host, func(h hal.HAL) func() error {
		return app.New(h, app.Config{Boot: cfg, HoldOnPanic: true})
	}); err != nil {
		if errors.Is(err, hal.ErrNoWindow) {
			err = fmt.Errorf("%w (rebuild with CGO_ENABLED=1 or pass -headless)", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootConfig(path, cmdline string) (bootcfg.Config, error) {
	cfg := bootcfg.Default()
	if path != "" {
		var err error
		if cfg, err = bootcfg.Load(path); err != nil {
			return cfg, err
		}
	}
	if cmdline != "" {
		if err := cfg.ApplyCmdline(cmdline); err != nil {
			return cfg, err
		}
		cfg.Cmdline = cmdline
	}
	return cfg, nil
}
