package bootcfg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/inhies/go-bytesize"
)

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.StackSize != 64*bytesize.KB {
		t.Fatalf("StackSize = %v, want 64KB", cfg.StackSize)
	}
}

func TestApplyCmdline(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyCmdline(`cpus=4 init='echo' sched.trace stack_size=128KB ticks=30`); err != nil {
		t.Fatalf("ApplyCmdline: %v", err)
	}
	if cfg.CPUs != 4 {
		t.Fatalf("CPUs = %d, want 4", cfg.CPUs)
	}
	if cfg.Init != "echo" {
		t.Fatalf("Init = %q, want %q", cfg.Init, "echo")
	}
	if !cfg.Trace {
		t.Fatal("Trace = false, want true")
	}
	if cfg.StackSize != 128*bytesize.KB {
		t.Fatalf("StackSize = %v, want 128KB", cfg.StackSize)
	}
	if cfg.Ticks != 30 {
		t.Fatalf("Ticks = %d, want 30", cfg.Ticks)
	}
}

func TestApplyCmdlineErrors(t *testing.T) {
	for _, line := range []string{
		"cpus=zero",
		"cpus=0",
		"bogus=1",
		"trace=maybe",
		`init="unterminated`,
	} {
		cfg := Default()
		if err := cfg.ApplyCmdline(line); !errors.Is(err, ErrInvalid) {
			t.Fatalf("ApplyCmdline(%q) = %v, want ErrInvalid", line, err)
		}
	}
}

func TestApplyYAML(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyYAML([]byte("cpus: 3\nhz: 250\nstack_size: 32KB\ncmdline: \"yielders=5 headless\"\n"))
	if err != nil {
		t.Fatalf("ApplyYAML: %v", err)
	}
	if cfg.CPUs != 3 || cfg.Hz != 250 {
		t.Fatalf("cpus/hz = %d/%d, want 3/250", cfg.CPUs, cfg.Hz)
	}
	if cfg.StackSize != 32*bytesize.KB {
		t.Fatalf("StackSize = %v, want 32KB", cfg.StackSize)
	}
	if cfg.Yielders != 5 || !cfg.Headless {
		t.Fatalf("cmdline not applied: yielders=%d headless=%t", cfg.Yielders, cfg.Headless)
	}
	if cfg.Messages != Default().Messages {
		t.Fatalf("Messages = %d, want default %d", cfg.Messages, Default().Messages)
	}
}

func TestApplyYAMLUnknownField(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyYAML([]byte("cpu: 3\n")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("ApplyYAML(unknown field) = %v, want ErrInvalid", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.yaml")
	if err := os.WriteFile(path, []byte("init: yielder\ntrace: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Init != "yielder" || !cfg.Trace {
		t.Fatalf("Load() = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load(missing) = nil error")
	}
}
