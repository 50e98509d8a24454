package hal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrShutdown is returned by an app step once the system has powered off.
var ErrShutdown = errors.New("system shut down")

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Host HostConfig

	// Hz is the app step rate; CPU timers use Host.Hz.
	Hz    int
	Ticks uint64
}

// RunHeadless runs the OS without opening a window.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := New(cfg.Host).(*hostHAL)
	h.startTimers()
	defer h.stopTimers()
	readTTY(ctx, h.kbd, h.logger, cancel)

	step := newApp(h)
	if step == nil {
		return errors.New("headless: app returned no step function")
	}

	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	for tick := uint64(1); ; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := step(); err != nil {
			if errors.Is(err, ErrShutdown) {
				return nil
			}
			return err
		}
		if cfg.Ticks > 0 && tick >= cfg.Ticks {
			h.logger.WriteLineString(fmt.Sprintf("host: step limit %d reached", cfg.Ticks))
			return nil
		}
	}
}
