package hal

// rgb565 is one little-endian framebuffer pixel.
type rgb565 uint16

func packRGB565(r, g, b uint8) rgb565 {
	return rgb565(r>>3)<<11 | rgb565(g>>2)<<5 | rgb565(b>>3)
}

// expand widens each channel to 8 bits by replicating its high bits
// into the low ones, so full intensity maps to 0xff.
func (p rgb565) expand() (r, g, b uint8) {
	r5 := uint8(p>>11) & 0x1f
	g6 := uint8(p>>5) & 0x3f
	b5 := uint8(p) & 0x1f
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

func (p rgb565) lo() byte { return byte(p) }
func (p rgb565) hi() byte { return byte(p >> 8) }
