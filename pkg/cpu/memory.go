package cpu

import "github.com/pkg/errors"

// Address space layout. All regions live inside the same 4KB image.
const (
	MemorySize = 0x1000

	FontStart    uint16 = 0x000
	ProgramStart uint16 = 0x200
	StackStart   uint16 = 0xEA0
	DisplayStart uint16 = 0xF00

	// MaxROMSize is the room between ProgramStart and the stack region.
	MaxROMSize = int(StackStart - ProgramStart)

	// DisplaySize is the packed framebuffer length in bytes (64×32 bits).
	DisplaySize = MemorySize - int(DisplayStart)

	addressMask uint16 = MemorySize - 1
	glyphSize          = 5
)

var ErrROMTooLarge = errors.New("rom too large")

// fontSet holds the 4×5 hex digit glyphs written to FontStart.
var fontSet = [16 * glyphSize]byte{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x10, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0xF0, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// FontSet returns a copy of the built-in glyph table.
func FontSet() []byte {
	out := make([]byte, len(fontSet))
	copy(out, fontSet[:])
	return out
}

// Memory is the 4KB image. Addresses are 12 bits wide: every access wraps
// at MemorySize, so runaway sprite or stack addressing lands in other
// regions of the image instead of faulting.
type Memory [MemorySize]byte

// Read8 reads a single byte from addr.
func (m *Memory) Read8(addr uint16) byte {
	return m[addr&addressMask]
}

// Write8 writes a single byte to addr.
func (m *Memory) Write8(addr uint16, val byte) {
	m[addr&addressMask] = val
}

// Read16 reads a big-endian word from addr and addr+1.
func (m *Memory) Read16(addr uint16) uint16 {
	hi := uint16(m.Read8(addr))
	lo := uint16(m.Read8(addr + 1))
	return hi<<8 | lo
}

// Write16 writes a big-endian word to addr and addr+1.
func (m *Memory) Write16(addr uint16, val uint16) {
	m.Write8(addr, byte(val>>8))
	m.Write8(addr+1, byte(val))
}

func (m *Memory) loadFont() {
	copy(m[FontStart:], fontSet[:])
}

// loadROM copies rom to ProgramStart. Oversized images are rejected
// before anything is written.
func (m *Memory) loadROM(rom []byte) error {
	if len(rom) > MaxROMSize {
		return errors.Wrapf(ErrROMTooLarge, "%d bytes > %d bytes", len(rom), MaxROMSize)
	}
	copy(m[ProgramStart:], rom)
	return nil
}
