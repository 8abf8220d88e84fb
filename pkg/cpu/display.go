package cpu

// Screen dimensions in pixels.
const (
	ScreenWidth  = 64
	ScreenHeight = 32

	bytesPerRow = ScreenWidth / 8
)

// Frame is the decoded framebuffer, indexed [row][column].
type Frame [ScreenHeight][ScreenWidth]bool

// Display encodes the framebuffer packed into the display region of a
// Memory image: 8 bytes per row, most significant bit leftmost.
type Display struct {
	mem *Memory
}

// NewDisplay returns a view over the display region of m.
func NewDisplay(m *Memory) Display {
	return Display{mem: m}
}

func (d Display) Clear() {
	for i := 0; i < DisplaySize; i++ {
		d.mem.Write8(DisplayStart+uint16(i), 0)
	}
}

// DrawSprite XORs height rows read from memory at i onto the framebuffer at
// (x, y). Each row is shifted by x mod 8 and may straddle two display bytes;
// only the 8 sprite bits are touched. It reports whether any set pixel was
// erased. Coordinates are not wrapped to the screen.
func (d Display) DrawSprite(i uint16, x, y, height byte) bool {
	collision := false
	shift := x % 8

	for row := uint16(0); row < uint16(height); row++ {
		addr := DisplayStart + (uint16(y)+row)*bytesPerRow + uint16(x/8)
		sprite := d.mem.Read8(i + row)

		hi := sprite >> shift
		old := d.mem.Read8(addr)
		if old&hi != 0 {
			collision = true
		}
		d.mem.Write8(addr, old^hi)

		if shift == 0 {
			continue
		}

		lo := sprite << (8 - shift)
		old = d.mem.Read8(addr + 1)
		if old&lo != 0 {
			collision = true
		}
		d.mem.Write8(addr+1, old^lo)
	}

	return collision
}

// Pixel reports whether the pixel at (x, y) is set.
func (d Display) Pixel(x, y int) bool {
	if x < 0 || x >= ScreenWidth || y < 0 || y >= ScreenHeight {
		return false
	}
	b := d.mem.Read8(DisplayStart + uint16(y*bytesPerRow+x/8))
	return b&(0x80>>(x%8)) != 0
}

// Packed returns a copy of the raw display region.
func (d Display) Packed() [DisplaySize]byte {
	var out [DisplaySize]byte
	copy(out[:], d.mem[DisplayStart:])
	return out
}

// Export decodes the display region into a pixel matrix.
func (d Display) Export() Frame {
	return DecodeFrame(d.Packed())
}

// DecodeFrame unpacks a display region into a pixel matrix.
func DecodeFrame(packed [DisplaySize]byte) Frame {
	var f Frame
	for y := 0; y < ScreenHeight; y++ {
		for x := 0; x < ScreenWidth; x++ {
			f[y][x] = packed[y*bytesPerRow+x/8]&(0x80>>(x%8)) != 0
		}
	}
	return f
}
