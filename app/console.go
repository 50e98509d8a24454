package app

import (
	"image/color"
	"sync"

	"nucleus/hal"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyterm"
)

const (
	consoleFontHeight = 6
	consoleFontOffset = 5
)

// fbDisplay adapts a hal.Framebuffer to the tinygo display interfaces.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = fbDisplay{}

func (d fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := d.fb.Buffer()
	if buf == nil {
		return
	}

	w := d.fb.Width()
	h := d.fb.Height()
	ix := int(x)
	iy := int(y)
	if ix < 0 || ix >= w || iy < 0 || iy >= h {
		return
	}

	off := iy*d.fb.StrideBytes() + ix*2
	if off < 0 || off+1 >= len(buf) {
		return
	}
	pixel := rgb565(c)
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

func (d fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	for j := y; j < y+height; j++ {
		for i := x; i < x+width; i++ {
			d.SetPixel(i, j, c)
		}
	}
	return nil
}

func (d fbDisplay) SetScroll(line int16) {
	if s, ok := d.fb.(hal.Scroller); ok {
		s.SetScroll(int(line))
	}
}

func (d fbDisplay) SetRotation(rotation drivers.Rotation) error {
	if rotation != drivers.Rotation0 {
		return hal.ErrNotImplemented
	}
	return nil
}

func rgb565(c color.RGBA) uint16 {
	return uint16((uint16(c.R>>3)&0x1F)<<11 | (uint16(c.G>>2)&0x3F)<<5 | (uint16(c.B>>3) & 0x1F))
}

// console mirrors log lines onto the framebuffer through a VT100 terminal.
type console struct {
	mu    sync.Mutex
	term  *tinyterm.Terminal
	disp  fbDisplay
	dirty bool

	// frozen stops output once the panic screen owns the framebuffer.
	frozen bool
}

func newConsole(fb hal.Framebuffer) *console {
	if fb == nil {
		return nil
	}
	fb.ClearRGB(0, 0, 0)
	d := fbDisplay{fb: fb}
	t := tinyterm.NewTerminal(d)
	t.Configure(&tinyterm.Config{
		Font:       &tinyfont.TomThumb,
		FontHeight: consoleFontHeight,
		FontOffset: consoleFontOffset,
	})
	return &console{term: t, disp: d}
}

func (c *console) WriteLineString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return
	}
	_, _ = c.term.Write([]byte(s))
	_, _ = c.term.Write([]byte("\r\n"))
	c.dirty = true
}

func (c *console) WriteLineBytes(b []byte) { c.WriteLineString(string(b)) }

func (c *console) freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// flush presents the framebuffer if anything was written since the last call.
func (c *console) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return
	}
	c.dirty = false
	_ = c.disp.Display()
}

// teeLogger writes every line to all of its loggers.
type teeLogger []hal.Logger

func (t teeLogger) WriteLineString(s string) {
	for _, l := range t {
		l.WriteLineString(s)
	}
}

func (t teeLogger) WriteLineBytes(b []byte) {
	for _, l := range t {
		l.WriteLineBytes(b)
	}
}

// consoleHAL is the machine HAL with its logger teed onto the console.
type consoleHAL struct {
	hal.HAL
	log hal.Logger
}

func (h consoleHAL) Logger() hal.Logger { return h.log }
