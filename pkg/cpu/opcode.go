package cpu

// opcode is a fetched 16-bit instruction word.
type opcode uint16

func (o opcode) family() byte { return byte(o >> 12) }
func (o opcode) x() byte      { return byte(o>>8) & 0x0F }
func (o opcode) y() byte      { return byte(o>>4) & 0x0F }
func (o opcode) n() byte      { return byte(o) & 0x0F }
func (o opcode) kk() byte     { return byte(o) }
func (o opcode) nnn() uint16  { return uint16(o) & 0x0FFF }

type handler func(c *CPU, op opcode)

// families dispatches on the top nibble of the instruction word.
var families = [16]handler{
	0x0: execSystem,
	0x1: execJump,
	0x2: execCall,
	0x3: func(c *CPU, op opcode) { c.skipIf(c.V[op.x()] == op.kk()) },
	0x4: func(c *CPU, op opcode) { c.skipIf(c.V[op.x()] != op.kk()) },
	0x5: func(c *CPU, op opcode) {
		if op.n() == 0 {
			c.skipIf(c.V[op.x()] == c.V[op.y()])
		}
	},
	0x6: func(c *CPU, op opcode) { c.V[op.x()] = op.kk() },
	0x7: func(c *CPU, op opcode) { c.V[op.x()] += op.kk() },
	0x8: execALU,
	0x9: func(c *CPU, op opcode) {
		if op.n() == 0 {
			c.skipIf(c.V[op.x()] != c.V[op.y()])
		}
	},
	0xA: func(c *CPU, op opcode) { c.I = op.nnn() },
	0xB: func(c *CPU, op opcode) { c.PC = op.nnn() + uint16(c.V[0]) },
	0xC: func(c *CPU, op opcode) { c.V[op.x()] = c.Rand() & op.kk() },
	0xD: execDraw,
	0xE: execKeySkip,
	0xF: execMisc,
}

func execSystem(c *CPU, op opcode) {
	switch op {
	case 0x00E0:
		c.Display().Clear()
		c.present()
	case 0x00EE:
		// The stack holds the address of the call instruction itself.
		ret := c.Memory.Read16(c.stackAddr())
		c.SP--
		c.PC = ret + 2
	}
	// 0nnn machine code routines are not supported.
}

func execJump(c *CPU, op opcode) {
	c.PC = op.nnn()
}

func execCall(c *CPU, op opcode) {
	c.SP++
	c.Memory.Write16(c.stackAddr(), c.PC-2)
	c.PC = op.nnn()
}

// aluOp computes the result for 8xyN and the VF value, if the operation
// defines one.
type aluOp func(vx, vy byte) (result, flag byte, setsFlag bool)

var aluOps = map[byte]aluOp{
	0x0: func(_, vy byte) (byte, byte, bool) { return vy, 0, false },
	0x1: func(vx, vy byte) (byte, byte, bool) { return vx | vy, 0, false },
	0x2: func(vx, vy byte) (byte, byte, bool) { return vx & vy, 0, false },
	0x3: func(vx, vy byte) (byte, byte, bool) { return vx ^ vy, 0, false },
	0x4: func(vx, vy byte) (byte, byte, bool) {
		sum := uint16(vx) + uint16(vy)
		return byte(sum), boolFlag(sum > 0xFF), true
	},
	0x5: func(vx, vy byte) (byte, byte, bool) { return vx - vy, boolFlag(vy <= vx), true },
	0x6: func(vx, _ byte) (byte, byte, bool) { return vx >> 1, vx & 0x01, true },
	0x7: func(vx, vy byte) (byte, byte, bool) { return vy - vx, boolFlag(vy > vx), true },
	0xE: func(vx, _ byte) (byte, byte, bool) { return vx << 1, vx >> 7, true },
}

func execALU(c *CPU, op opcode) {
	fn, ok := aluOps[op.n()]
	if !ok {
		return
	}
	result, flag, setsFlag := fn(c.V[op.x()], c.V[op.y()])
	c.V[op.x()] = result
	if setsFlag {
		c.V[RegF] = flag
	}
}

func execDraw(c *CPU, op opcode) {
	collision := c.Display().DrawSprite(c.I, c.V[op.x()], c.V[op.y()], op.n())
	c.V[RegF] = boolFlag(collision)
	c.present()
}

func execKeySkip(c *CPU, op opcode) {
	switch op.kk() {
	case 0x9E:
		c.skipIf(c.Keys.Key(c.V[op.x()]))
	case 0xA1:
		c.skipIf(!c.Keys.Key(c.V[op.x()]))
	}
}

var miscOps = map[byte]func(c *CPU, x byte){
	0x07: func(c *CPU, x byte) { c.V[x] = c.Delay.Value() },
	0x0A: waitKey,
	0x15: func(c *CPU, x byte) { c.Delay.Set(c.V[x]) },
	0x18: func(c *CPU, x byte) { c.Sound.Set(c.V[x]) },
	0x1E: func(c *CPU, x byte) {
		sum := uint32(c.I) + uint32(c.V[x])
		c.I = uint16(sum)
		c.V[RegF] = boolFlag(sum > 0xFFFF)
	},
	0x29: func(c *CPU, x byte) { c.I = FontStart + uint16(c.V[x])*glyphSize },
	0x33: func(c *CPU, x byte) {
		v := c.V[x]
		c.Memory.Write8(c.I, v/100)
		c.Memory.Write8(c.I+1, v/10%10)
		c.Memory.Write8(c.I+2, v%10)
	},
	0x55: func(c *CPU, x byte) {
		for r := uint16(0); r <= uint16(x); r++ {
			c.Memory.Write8(c.I+r, c.V[r])
		}
	},
	0x65: func(c *CPU, x byte) {
		for r := uint16(0); r <= uint16(x); r++ {
			c.V[r] = c.Memory.Read8(c.I + r)
		}
	},
}

func execMisc(c *CPU, op opcode) {
	if fn, ok := miscOps[op.kk()]; ok {
		fn(c, op.x())
	}
}

// waitKey re-executes Fx0A until a key-down edge is seen.
func waitKey(c *CPU, x byte) {
	c.Keys.Await()
	if !c.Keys.Ack() {
		c.PC -= 2
		return
	}
	c.V[x] = c.Keys.LastKey()
}

func boolFlag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
