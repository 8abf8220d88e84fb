// Package asm is a two-pass assembler for the CHIP-8 instruction set using
// the Cowgod mnemonics.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gochip8/pkg/cpu"
)

// Origin is the address the first emitted byte is loaded at.
const Origin = cpu.ProgramStart

// operand kinds
type kind int

const (
	kindImm kind = iota
	kindReg
	kindI
	kindIndirect
	kindDT
	kindST
	kindK
	kindF
	kindB
)

var specialOperands = map[string]kind{
	"I":   kindI,
	"[I]": kindIndirect,
	"DT":  kindDT,
	"ST":  kindST,
	"K":   kindK,
	"F":   kindF,
	"B":   kindB,
}

// register-register ALU forms, keyed by mnemonic, value is the 8xyN selector
var aluOps = map[string]uint16{
	"OR":   0x1,
	"AND":  0x2,
	"XOR":  0x3,
	"SUB":  0x5,
	"SUBN": 0x7,
}

var mnemonics = map[string]bool{
	"CLS": true, "RET": true, "SYS": true, "JP": true, "CALL": true,
	"SE": true, "SNE": true, "LD": true, "ADD": true, "OR": true,
	"AND": true, "XOR": true, "SUB": true, "SHR": true, "SUBN": true,
	"SHL": true, "RND": true, "DRW": true, "SKP": true, "SKNP": true,
}

type Assembler struct {
	labels map[string]uint16
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

type operand struct {
	kind  kind
	value uint16
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint16),
	}
}

// Assemble translates source into a ROM image loaded at Origin. The
// returned source map takes an absolute address to the 1-based line that
// emitted it.
func Assemble(code string) ([]byte, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]byte, map[uint16]int, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}

	return a.pass2(lines)
}

func (a *Assembler) pass1(lines []string) error {
	address := uint32(Origin)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			key := normalizeLabel(lbl)
			if _, exists := a.labels[key]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[key] = uint16(address)
		}

		if p.mnemonic == "" {
			continue
		}

		var length uint32
		switch p.mnemonic {
		case ".ORG":
			target, err := parseOrigin(p.operands, lineNo, address)
			if err != nil {
				return err
			}
			address = target
			continue
		case ".BYTE":
			if len(p.operands) == 0 {
				return fmt.Errorf(".BYTE expects at least one operand on line %d", lineNo)
			}
			length = uint32(len(p.operands))
		case ".WORD":
			if len(p.operands) == 0 {
				return fmt.Errorf(".WORD expects at least one operand on line %d", lineNo)
			}
			length = uint32(len(p.operands)) * 2
		default:
			if !mnemonics[p.mnemonic] {
				return fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
			}
			length = 2
		}

		if address+length > uint32(cpu.StackStart) {
			return fmt.Errorf("program too large near line %d", lineNo)
		}
		address += length
	}

	return nil
}

func (a *Assembler) pass2(lines []string) ([]byte, map[uint16]int, error) {
	program := make([]byte, 0)
	sourceMap := make(map[uint16]int)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, nil, err
		}

		if p.mnemonic == "" {
			continue
		}

		address := Origin + uint16(len(program))

		switch p.mnemonic {
		case ".ORG":
			target, err := parseOrigin(p.operands, lineNo, uint32(address))
			if err != nil {
				return nil, nil, err
			}
			program = append(program, make([]byte, target-uint32(address))...)
			continue

		case ".BYTE":
			sourceMap[address] = lineNo
			for _, tok := range p.operands {
				val, err := a.parseImmediate(tok, lineNo, 0xFF)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, byte(val))
			}
			continue

		case ".WORD":
			sourceMap[address] = lineNo
			for _, tok := range p.operands {
				val, err := a.parseImmediate(tok, lineNo, 0xFFFF)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, byte(val>>8), byte(val))
			}
			continue
		}

		word, err := a.encode(p)
		if err != nil {
			return nil, nil, err
		}
		sourceMap[address] = lineNo
		program = append(program, byte(word>>8), byte(word))
	}

	return program, sourceMap, nil
}

func parseOrigin(ops []string, lineNo int, address uint32) (uint32, error) {
	if len(ops) != 1 {
		return 0, fmt.Errorf(".ORG expects exactly one operand on line %d", lineNo)
	}
	target, err := strconv.ParseUint(ops[0], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid .ORG value on line %d: %s", lineNo, ops[0])
	}
	if target >= uint64(cpu.StackStart) {
		return 0, fmt.Errorf(".ORG out of range on line %d: %s", lineNo, ops[0])
	}
	if uint32(target) < address {
		return 0, fmt.Errorf("cannot move origin backward on line %d", lineNo)
	}
	return uint32(target), nil
}

// encode builds the instruction word for one parsed line.
func (a *Assembler) encode(p parsedLine) (uint16, error) {
	ops := make([]operand, len(p.operands))
	for i, tok := range p.operands {
		op, err := a.parseOperand(tok, p.lineNo)
		if err != nil {
			return 0, err
		}
		ops[i] = op
	}

	bad := func() (uint16, error) {
		return 0, fmt.Errorf("invalid operands for %s on line %d: %s",
			p.mnemonic, p.lineNo, strings.Join(p.operands, ", "))
	}
	match := func(kinds ...kind) bool {
		if len(ops) != len(kinds) {
			return false
		}
		for i, k := range kinds {
			if ops[i].kind != k {
				return false
			}
		}
		return true
	}
	x := func(i int) uint16 { return ops[i].value << 8 }
	y := func(i int) uint16 { return ops[i].value << 4 }

	switch p.mnemonic {
	case "CLS":
		if match() {
			return 0x00E0, nil
		}
	case "RET":
		if match() {
			return 0x00EE, nil
		}
	case "SYS":
		if match(kindImm) {
			return a.address(0x0000, ops[0], p.lineNo)
		}
	case "JP":
		if match(kindImm) {
			return a.address(0x1000, ops[0], p.lineNo)
		}
		if match(kindReg, kindImm) && ops[0].value == 0 {
			return a.address(0xB000, ops[1], p.lineNo)
		}
	case "CALL":
		if match(kindImm) {
			return a.address(0x2000, ops[0], p.lineNo)
		}
	case "SE", "SNE":
		immBase, regBase := uint16(0x3000), uint16(0x5000)
		if p.mnemonic == "SNE" {
			immBase, regBase = 0x4000, 0x9000
		}
		if match(kindReg, kindImm) {
			return a.byteImm(immBase|x(0), ops[1], p.lineNo)
		}
		if match(kindReg, kindReg) {
			return regBase | x(0) | y(1), nil
		}
	case "LD":
		switch {
		case match(kindReg, kindImm):
			return a.byteImm(0x6000|x(0), ops[1], p.lineNo)
		case match(kindReg, kindReg):
			return 0x8000 | x(0) | y(1), nil
		case match(kindI, kindImm):
			return a.address(0xA000, ops[1], p.lineNo)
		case match(kindReg, kindDT):
			return 0xF007 | x(0), nil
		case match(kindReg, kindK):
			return 0xF00A | x(0), nil
		case match(kindDT, kindReg):
			return 0xF015 | x(1), nil
		case match(kindST, kindReg):
			return 0xF018 | x(1), nil
		case match(kindF, kindReg):
			return 0xF029 | x(1), nil
		case match(kindB, kindReg):
			return 0xF033 | x(1), nil
		case match(kindIndirect, kindReg):
			return 0xF055 | x(1), nil
		case match(kindReg, kindIndirect):
			return 0xF065 | x(0), nil
		}
	case "ADD":
		switch {
		case match(kindReg, kindImm):
			return a.byteImm(0x7000|x(0), ops[1], p.lineNo)
		case match(kindReg, kindReg):
			return 0x8004 | x(0) | y(1), nil
		case match(kindI, kindReg):
			return 0xF01E | x(1), nil
		}
	case "OR", "AND", "XOR", "SUB", "SUBN":
		if match(kindReg, kindReg) {
			return 0x8000 | x(0) | y(1) | aluOps[p.mnemonic], nil
		}
	case "SHR", "SHL":
		sel := uint16(0x6)
		if p.mnemonic == "SHL" {
			sel = 0xE
		}
		if match(kindReg) {
			return 0x8000 | x(0) | sel, nil
		}
		if match(kindReg, kindReg) {
			return 0x8000 | x(0) | y(1) | sel, nil
		}
	case "RND":
		if match(kindReg, kindImm) {
			return a.byteImm(0xC000|x(0), ops[1], p.lineNo)
		}
	case "DRW":
		if match(kindReg, kindReg, kindImm) {
			if ops[2].value > 0xF {
				return 0, fmt.Errorf("sprite height out of range on line %d: %d", p.lineNo, ops[2].value)
			}
			return 0xD000 | x(0) | y(1) | ops[2].value, nil
		}
	case "SKP":
		if match(kindReg) {
			return 0xE09E | x(0), nil
		}
	case "SKNP":
		if match(kindReg) {
			return 0xE0A1 | x(0), nil
		}
	default:
		return 0, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}

	return bad()
}

func (a *Assembler) address(base uint16, op operand, lineNo int) (uint16, error) {
	if op.value > 0xFFF {
		return 0, fmt.Errorf("address out of range on line %d: 0x%X", lineNo, op.value)
	}
	return base | op.value, nil
}

func (a *Assembler) byteImm(base uint16, op operand, lineNo int) (uint16, error) {
	if op.value > 0xFF {
		return 0, fmt.Errorf("byte immediate out of range on line %d: 0x%X", lineNo, op.value)
	}
	return base | op.value, nil
}

func (a *Assembler) parseOperand(token string, lineNo int) (operand, error) {
	upper := strings.ToUpper(token)
	if k, ok := specialOperands[upper]; ok {
		return operand{kind: k}, nil
	}
	if reg, ok := parseRegister(upper); ok {
		return operand{kind: kindReg, value: reg}, nil
	}
	val, err := a.parseImmediate(token, lineNo, 0xFFFF)
	if err != nil {
		return operand{}, err
	}
	return operand{kind: kindImm, value: val}, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields := strings.Fields(normalizeInstructionText(line))
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}

	return p, nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func normalizeInstructionText(line string) string {
	return strings.ReplaceAll(line, ",", " ")
}

// parseRegister accepts V0 to VF. The token must already be upper case.
func parseRegister(token string) (uint16, bool) {
	if len(token) != 2 || token[0] != 'V' {
		return 0, false
	}
	n, err := strconv.ParseUint(token[1:], 16, 8)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

func (a *Assembler) parseImmediate(token string, lineNo int, limit uint64) (uint16, error) {
	if value, err := strconv.ParseUint(token, 0, 32); err == nil {
		if value > limit {
			return 0, fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
		}
		return uint16(value), nil
	}

	label := normalizeLabel(token)
	if addr, ok := a.labels[label]; ok {
		return addr, nil
	}

	if isIdentifier(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeLabel(label string) string {
	return strings.ToUpper(label)
}
