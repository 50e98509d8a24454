package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"nucleus/hal"
	"nucleus/kernel"

	"tinygo.org/x/tinyfont"
)

func installPanicHandler(k *kernel.Kernel, h hal.HAL, con *console) {
	k.SetPanicHandler(func(info kernel.PanicInfo) {
		if con != nil {
			con.freeze()
		}
		if l := h.Logger(); l != nil {
			l.WriteLineString(fmt.Sprintf("nucleus panic: %s", info))
			if len(info.Stack) > 0 {
				for _, line := range strings.Split(string(info.Stack), "\n") {
					if line == "" {
						continue
					}
					l.WriteLineString(line)
				}
			}
		}

		disp := h.Display()
		if disp == nil {
			return
		}
		fb := disp.Framebuffer()
		if fb == nil {
			return
		}
		drawPanicScreen(fb, info)
	})
}

func drawPanicScreen(fb hal.Framebuffer, info kernel.PanicInfo) {
	fb.ClearRGB(255, 255, 255)
	if s, ok := fb.(hal.Scroller); ok {
		s.SetScroll(0)
	}

	font := &tinyfont.TomThumb
	fontHeight, fontOffset := int16(consoleFontHeight), int16(consoleFontOffset)
	_, outboxWidth := tinyfont.LineWidth(font, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 {
		_ = fb.Present()
		return
	}

	d := fbDisplay{fb: fb}

	lines := []string{
		"nucleus panic:",
		fmt.Sprintf("cpu: %d", info.CPU),
		fmt.Sprintf("task: %d", info.TaskID),
		fmt.Sprintf("reason: %s", info.Reason),
	}
	if len(info.Stack) > 0 {
		lines = append(lines, "stack:")
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			lines = append(lines, line)
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}

	fg := color.RGBA{R: 0, G: 0, B: 0, A: 255}

	y := int16(0)
	maxW, maxH := fb.Width(), fb.Height()
	cols := int16(maxW) / fontWidth
	if cols <= 0 {
		cols = 1
	}

	for _, line := range lines {
		for len(line) > 0 {
			if y+fontHeight > int16(maxH) {
				_ = fb.Present()
				return
			}
			chunk, rest := takeRunes(line, cols)
			drawTextLine(d, font, fontWidth, fontOffset, 0, y, chunk, fg)
			y += fontHeight
			line = strings.TrimLeft(rest, " \t")
		}
	}
	_ = fb.Present()
}

func drawTextLine(
	d fbDisplay,
	font tinyfont.Fonter,
	fontWidth, fontOffset int16,
	x0, y0 int16,
	s string,
	fg color.RGBA,
) {
	var drawX = x0
	for _, r := range s {
		tinyfont.DrawChar(d, font, drawX, y0+fontOffset, r, fg)
		drawX += fontWidth
	}
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}
