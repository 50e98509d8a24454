package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nucleus/mm"
)

func TestBuildAndDump(t *testing.T) {
	dir := t.TempDir()
	code := filepath.Join(dir, "code.bin")
	if err := os.WriteFile(code, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	out := filepath.Join(dir, "echo.img")
	if err := build("echo", code, out); err != nil {
		t.Fatalf("build() error = %v", err)
	}

	var buf bytes.Buffer
	if err := dump(&buf, out); err != nil {
		t.Fatalf("dump() error = %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "program: echo") || !strings.Contains(got, "code: 2.00") {
		t.Fatalf("dump() = %q", got)
	}
}

func TestBuildRejectsEmptyName(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.img")
	if err := build("", "", out); !errors.Is(err, mm.ErrBadImage) {
		t.Fatalf("build() error = %v, want %v", err, mm.ErrBadImage)
	}
}

func TestDumpRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.img")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := dump(&bytes.Buffer{}, path); !errors.Is(err, mm.ErrBadImage) {
		t.Fatalf("dump() error = %v, want %v", err, mm.ErrBadImage)
	}
}
