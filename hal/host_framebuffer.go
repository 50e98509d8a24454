package hal

import "sync"

type hostFramebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	stride int
	scroll int
	buf    []byte
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	stride := width * 2
	return &hostFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		buf:    make([]byte, stride*height),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.stride }
func (f *hostFramebuffer) Buffer() []byte      { return f.buf }
func (f *hostFramebuffer) Present() error      { return nil }

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pixel := packRGB565(r, g, b)
	lo, hi := pixel.lo(), pixel.hi()
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i] = lo
		f.buf[i+1] = hi
	}
	f.scroll = 0
}

// SetScroll sets the first visible scanline, wrapping like a hardware
// vertical-scroll register.
func (f *hostFramebuffer) SetScroll(line int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.height > 0 {
		f.scroll = ((line % f.height) + f.height) % f.height
	}
}

// snapshotRGB565 copies the visible image, rotated by the scroll offset.
func (f *hostFramebuffer) snapshotRGB565(dst []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off := f.scroll * f.stride
	n := copy(dst, f.buf[off:])
	copy(dst[n:], f.buf[:off])
}
