package cpu

import (
	"fmt"
	"strings"

	"github.com/retroenv/retrogolib/arch/cpu/chip8"
)

// mnemonic looks the word up in the CHIP-8 opcode table.
func mnemonic(word uint16) (string, bool) {
	for _, op := range chip8.Opcodes[int(word>>12)] {
		if op.Instruction == nil {
			continue
		}
		if op.Info.Mask&word == op.Info.Value {
			return strings.ToUpper(op.Instruction.Name), true
		}
	}
	return "", false
}

// Disassemble renders a single instruction word as assembly text. Words
// that do not decode to an instruction are rendered as a .WORD directive.
func Disassemble(word uint16) string {
	name, ok := mnemonic(word)
	if !ok {
		return fmt.Sprintf(".WORD 0x%04X", word)
	}
	if operands := formatOperands(opcode(word)); operands != "" {
		return name + " " + operands
	}
	return name
}

func formatOperands(op opcode) string {
	x, y := op.x(), op.y()

	switch op.family() {
	case 0x0:
		if op == 0x00E0 || op == 0x00EE {
			return ""
		}
		return fmt.Sprintf("0x%03X", op.nnn())
	case 0x1, 0x2:
		return fmt.Sprintf("0x%03X", op.nnn())
	case 0x3, 0x4, 0x6, 0x7, 0xC:
		return fmt.Sprintf("V%X, 0x%02X", x, op.kk())
	case 0x5, 0x9:
		return fmt.Sprintf("V%X, V%X", x, y)
	case 0x8:
		if n := op.n(); n == 0x6 || n == 0xE {
			return fmt.Sprintf("V%X", x)
		}
		return fmt.Sprintf("V%X, V%X", x, y)
	case 0xA:
		return fmt.Sprintf("I, 0x%03X", op.nnn())
	case 0xB:
		return fmt.Sprintf("V0, 0x%03X", op.nnn())
	case 0xD:
		return fmt.Sprintf("V%X, V%X, %d", x, y, op.n())
	case 0xE:
		return fmt.Sprintf("V%X", x)
	}

	switch op.kk() {
	case 0x07:
		return fmt.Sprintf("V%X, DT", x)
	case 0x0A:
		return fmt.Sprintf("V%X, K", x)
	case 0x15:
		return fmt.Sprintf("DT, V%X", x)
	case 0x18:
		return fmt.Sprintf("ST, V%X", x)
	case 0x1E:
		return fmt.Sprintf("I, V%X", x)
	case 0x29:
		return fmt.Sprintf("F, V%X", x)
	case 0x33:
		return fmt.Sprintf("B, V%X", x)
	case 0x55:
		return fmt.Sprintf("[I], V%X", x)
	case 0x65:
		return fmt.Sprintf("V%X, [I]", x)
	}
	return ""
}

// DisassembleROM renders every instruction word of rom, one line per word,
// prefixed with its load address.
func DisassembleROM(rom []byte) []string {
	lines := make([]string, 0, len(rom)/2+1)
	for i := 0; i+1 < len(rom); i += 2 {
		word := uint16(rom[i])<<8 | uint16(rom[i+1])
		addr := int(ProgramStart) + i
		lines = append(lines, fmt.Sprintf("%03X: %04X  %s", addr, word, Disassemble(word)))
	}
	if len(rom)%2 == 1 {
		addr := int(ProgramStart) + len(rom) - 1
		lines = append(lines, fmt.Sprintf("%03X: %02X    .BYTE 0x%02X", addr, rom[len(rom)-1], rom[len(rom)-1]))
	}
	return lines
}
