package cpu

import (
	"math/rand"
)

// RegF is the flag register: carry, borrow, shifted-out bit and sprite collision.
const RegF = 0xF

// Renderer receives the packed display region after every sprite draw and
// screen clear.
type Renderer interface {
	Render(frame [DisplaySize]byte)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(frame [DisplaySize]byte)

func (f RendererFunc) Render(frame [DisplaySize]byte) { f(frame) }

// CPU is an emulator session. It owns the memory image, the register file,
// both timers and the keypad.
type CPU struct {
	V  [16]byte
	I  uint16
	PC uint16
	SP uint8

	Memory Memory

	Delay Timer
	Sound Timer

	Keys Keyboard

	// Renderer is notified after 00E0 and Dxyn. May be nil.
	Renderer Renderer

	// Rand supplies the random byte for Cxkk.
	Rand func() byte
}

// NewCPU creates a session with the font loaded and PC at ProgramStart.
func NewCPU() *CPU {
	c := &CPU{
		Rand: func() byte { return byte(rand.Intn(256)) },
	}
	c.Reset()
	return c
}

// Reset clears registers, timers, keypad and the display, and restores the
// font. Program memory is kept so the loaded ROM restarts.
func (c *CPU) Reset() {
	c.V = [16]byte{}
	c.I = 0
	c.PC = ProgramStart
	c.SP = 0
	c.Delay = Timer{}
	c.Sound = Timer{}
	c.Keys = Keyboard{}
	for addr := StackStart; addr < MemorySize; addr++ {
		c.Memory[addr] = 0
	}
	c.Memory.loadFont()
}

// LoadROM copies rom into program memory. Nothing is written if the image
// does not fit.
func (c *CPU) LoadROM(rom []byte) error {
	return c.Memory.loadROM(rom)
}

// Display returns the framebuffer view over this session's memory.
func (c *CPU) Display() Display {
	return NewDisplay(&c.Memory)
}

// Peek returns the instruction word at PC without executing it.
func (c *CPU) Peek() uint16 {
	return c.Memory.Read16(c.PC)
}

// Step fetches, decodes and executes one instruction. PC is advanced past
// the instruction before it executes; control flow instructions overwrite it.
func (c *CPU) Step() {
	op := opcode(c.Peek())
	c.PC += 2
	families[op.family()](c, op)
}

// TickTimers decrements both timers once.
func (c *CPU) TickTimers() {
	c.Delay.Tick()
	c.Sound.Tick()
}

func (c *CPU) skipIf(cond bool) {
	if cond {
		c.PC += 2
	}
}

func (c *CPU) present() {
	if c.Renderer != nil {
		c.Renderer.Render(c.Display().Packed())
	}
}

// stackAddr returns the slot address for the current stack pointer.
func (c *CPU) stackAddr() uint16 {
	return StackStart + uint16(c.SP)*2
}
