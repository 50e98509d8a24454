// Package bootcfg assembles the boot configuration from defaults, an
// optional YAML file and the kernel command line.
package bootcfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"
)

var ErrInvalid = errors.New("invalid boot config")

// Config is the boot configuration.
type Config struct {
	CPUs      int
	Hz        int
	StackSize bytesize.ByteSize
	Init      string
	Trace     bool
	Headless  bool
	// Ticks stops the machine after that many host steps; 0 runs forever.
	Ticks    uint64
	Yielders int
	Messages int
	Cmdline  string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CPUs:      2,
		Hz:        100,
		StackSize: 64 * bytesize.KB,
		Init:      "initd",
		Yielders:  2,
		Messages:  8,
	}
}

// file mirrors Config with optional fields, so a file only overrides what it
// names.
type file struct {
	CPUs      *int    `yaml:"cpus"`
	Hz        *int    `yaml:"hz"`
	StackSize *string `yaml:"stack_size"`
	Init      *string `yaml:"init"`
	Trace     *bool   `yaml:"trace"`
	Headless  *bool   `yaml:"headless"`
	Ticks     *uint64 `yaml:"ticks"`
	Yielders  *int    `yaml:"yielders"`
	Messages  *int    `yaml:"messages"`
	Cmdline   *string `yaml:"cmdline"`
}

// Load reads a YAML file over the defaults and then applies its cmdline.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("boot config: %w", err)
	}
	if err := cfg.ApplyYAML(data); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyYAML overrides the fields present in data, then parses the resulting
// Cmdline.
func (c *Config) ApplyYAML(data []byte) error {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if f.CPUs != nil {
		c.CPUs = *f.CPUs
	}
	if f.Hz != nil {
		c.Hz = *f.Hz
	}
	if f.StackSize != nil {
		size, err := bytesize.Parse(*f.StackSize)
		if err != nil {
			return fmt.Errorf("%w: stack_size %q: %v", ErrInvalid, *f.StackSize, err)
		}
		c.StackSize = size
	}
	if f.Init != nil {
		c.Init = *f.Init
	}
	if f.Trace != nil {
		c.Trace = *f.Trace
	}
	if f.Headless != nil {
		c.Headless = *f.Headless
	}
	if f.Ticks != nil {
		c.Ticks = *f.Ticks
	}
	if f.Yielders != nil {
		c.Yielders = *f.Yielders
	}
	if f.Messages != nil {
		c.Messages = *f.Messages
	}
	if f.Cmdline != nil {
		c.Cmdline = *f.Cmdline
		if err := c.ApplyCmdline(c.Cmdline); err != nil {
			return err
		}
	}
	return c.Validate()
}

// ApplyCmdline applies a kernel command line of key=value words, for
// example `cpus=4 init='initd' sched.trace stack_size=128KB`. A bare key
// sets a boolean option.
func (c *Config) ApplyCmdline(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("%w: cmdline: %v", ErrInvalid, err)
	}
	for _, w := range words {
		key, val, hasVal := strings.Cut(w, "=")
		if err := c.set(key, val, hasVal); err != nil {
			return fmt.Errorf("%w: cmdline %q: %v", ErrInvalid, w, err)
		}
	}
	return c.Validate()
}

func (c *Config) set(key, val string, hasVal bool) error {
	switch key {
	case "cpus":
		return setInt(&c.CPUs, val)
	case "hz":
		return setInt(&c.Hz, val)
	case "stack_size":
		size, err := bytesize.Parse(val)
		if err != nil {
			return err
		}
		c.StackSize = size
	case "init":
		if val == "" {
			return errors.New("empty init")
		}
		c.Init = val
	case "sched.trace", "trace":
		return setBool(&c.Trace, val, hasVal)
	case "headless":
		return setBool(&c.Headless, val, hasVal)
	case "ticks":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return err
		}
		c.Ticks = n
	case "yielders":
		return setInt(&c.Yielders, val)
	case "messages":
		return setInt(&c.Messages, val)
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func setInt(dst *int, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, val string, hasVal bool) error {
	if !hasVal {
		*dst = true
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	switch {
	case c.CPUs < 1 || c.CPUs > 64:
		return fmt.Errorf("%w: cpus %d out of range [1,64]", ErrInvalid, c.CPUs)
	case c.Hz < 1:
		return fmt.Errorf("%w: hz %d", ErrInvalid, c.Hz)
	case c.StackSize < 4*bytesize.KB:
		return fmt.Errorf("%w: stack_size %s below 4KB", ErrInvalid, c.StackSize)
	case c.Yielders < 0 || c.Messages < 0:
		return fmt.Errorf("%w: negative task counts", ErrInvalid)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("cpus=%d hz=%d stack_size=%s init=%s trace=%t yielders=%d messages=%d",
		c.CPUs, c.Hz, c.StackSize, c.Init, c.Trace, c.Yielders, c.Messages)
}
