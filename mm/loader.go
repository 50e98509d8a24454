package mm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"nucleus/kernel"
)

// Image layout: magic, little-endian u16 name length, name, code payload.
// The name selects the registered program that runs the image.
const imageMagic = "\x7fNUC"

const maxNameLen = 255

var (
	ErrBadImage       = errors.New("bad program image")
	ErrUnknownProgram = errors.New("unknown program")
)

// BuildImage encodes a program image.
func BuildImage(name string, payload []byte) []byte {
	b := make([]byte, 0, len(imageMagic)+2+len(name)+len(payload))
	b = append(b, imageMagic...)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(name)))
	b = append(b, name...)
	return append(b, payload...)
}

// ParseImage splits an image into its program name and code payload.
func ParseImage(b []byte) (string, []byte, error) {
	if len(b) < len(imageMagic)+2 || string(b[:len(imageMagic)]) != imageMagic {
		return "", nil, fmt.Errorf("%w: missing magic", ErrBadImage)
	}
	b = b[len(imageMagic):]
	n := int(binary.LittleEndian.Uint16(b))
	b = b[2:]
	if n == 0 || n > maxNameLen || n > len(b) {
		return "", nil, fmt.Errorf("%w: name length %d", ErrBadImage, n)
	}
	return string(b[:n]), b[n:], nil
}

// Loader turns images into user address spaces. Programs are registered by
// name; an image only carries the name and the bytes mapped as its code.
type Loader struct {
	frames *Frames
	kernel *KernelSpace

	mu    sync.RWMutex
	progs map[string]kernel.Program
}

// NewLoader returns a loader building spaces from frames.
func NewLoader(frames *Frames, ks *KernelSpace) *Loader {
	return &Loader{frames: frames, kernel: ks, progs: make(map[string]kernel.Program)}
}

// Register binds name to prog.
func (l *Loader) Register(name string, prog kernel.Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progs[name] = prog
}

// Programs lists the registered program names.
func (l *Loader) Programs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.progs))
	for name := range l.progs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load builds a fresh address space holding the image's code, a heap and a
// stack.
func (l *Loader) Load(image []byte) (*kernel.Image, error) {
	name, code, err := ParseImage(image)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	prog, ok := l.progs[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownProgram)
	}

	space, err := NewSpace(l.frames, l.kernel)
	if err != nil {
		return nil, err
	}
	if err := l.populate(space, code); err != nil {
		space.Release()
		return nil, fmt.Errorf("load %q: %w", name, err)
	}
	return &kernel.Image{
		Name:     name,
		Space:    space,
		Entry:    UserCodeBase,
		StackTop: UserStackTop,
		Program:  prog,
	}, nil
}

// LoadProgram builds an image for a registered program and loads it.
func (l *Loader) LoadProgram(name string) (*kernel.Image, error) {
	return l.Load(BuildImage(name, nil))
}

func (l *Loader) populate(s *Space, code []byte) error {
	size := len(code)
	if size == 0 {
		size = PageSize
	}
	if err := s.Map("text", UserCodeBase, size, false); err != nil {
		return err
	}
	if err := s.fill(UserCodeBase, code); err != nil {
		return err
	}
	if err := s.Map("heap", UserHeapBase, UserHeapSize, true); err != nil {
		return err
	}
	return s.Map("stack", UserStackTop-UserStackSize, UserStackSize, true)
}
