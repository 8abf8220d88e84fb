package cpu

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"testing"
)

func TestCPU_HibernateCoreState(t *testing.T) {
	c1 := NewCPU()
	c1.V[0] = 0x12
	c1.V[7] = 0x07
	c1.V[RegF] = 1
	c1.I = 0x345
	c1.PC = 0x2A4
	c1.SP = 3
	c1.Delay.Set(42)
	c1.Sound.Set(9)
	c1.Keys.Notify(0xB, true)
	c1.Keys.Await()

	data, err := c1.HibernateToBytes()
	if err != nil {
		t.Fatalf("HibernateToBytes: %v", err)
	}

	c2 := NewCPU()
	if err := c2.RestoreFromBytes(data); err != nil {
		t.Fatalf("RestoreFromBytes: %v", err)
	}

	if c2.V != c1.V {
		t.Errorf("V mismatch: got %v, want %v", c2.V, c1.V)
	}
	if c2.I != c1.I {
		t.Errorf("I: got 0x%03X, want 0x%03X", c2.I, c1.I)
	}
	if c2.PC != c1.PC {
		t.Errorf("PC: got 0x%03X, want 0x%03X", c2.PC, c1.PC)
	}
	if c2.SP != c1.SP {
		t.Errorf("SP: got %d, want %d", c2.SP, c1.SP)
	}
	if c2.Delay.Value() != 42 || c2.Sound.Value() != 9 {
		t.Errorf("timers: got DT=%d ST=%d, want DT=42 ST=9", c2.Delay.Value(), c2.Sound.Value())
	}
	if c2.Keys != c1.Keys {
		t.Errorf("keyboard mismatch: got %+v, want %+v", c2.Keys, c1.Keys)
	}
}

func TestCPU_HibernateMemory(t *testing.T) {
	c1 := NewCPU()
	if err := c1.LoadROM([]byte{0x60, 0x05, 0x61, 0x0A}); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	c1.Memory[DisplayStart+10] = 0x3C
	c1.Memory[StackStart+2] = 0x02

	data, err := c1.HibernateToBytes()
	if err != nil {
		t.Fatalf("HibernateToBytes: %v", err)
	}

	c2 := NewCPU()
	renders := 0
	c2.Renderer = RendererFunc(func([DisplaySize]byte) { renders++ })
	if err := c2.RestoreFromBytes(data); err != nil {
		t.Fatalf("RestoreFromBytes: %v", err)
	}
	if c2.Memory != c1.Memory {
		t.Error("memory image mismatch after restore")
	}
	if renders != 1 {
		t.Errorf("expected restored frame to be presented once, got %d", renders)
	}
}

func TestCPU_HibernateResumesExecution(t *testing.T) {
	c1 := NewCPU()
	loadProgram(c1, 0x6005, 0x610A, 0x8014)
	c1.Step()

	data, err := c1.HibernateToBytes()
	if err != nil {
		t.Fatalf("HibernateToBytes: %v", err)
	}
	c2 := NewCPU()
	if err := c2.RestoreFromBytes(data); err != nil {
		t.Fatalf("RestoreFromBytes: %v", err)
	}

	stepN(c1, 2)
	stepN(c2, 2)
	if c1.V != c2.V || c1.PC != c2.PC {
		t.Errorf("restored session diverged: V0 %d vs %d, PC 0x%03X vs 0x%03X", c1.V[0], c2.V[0], c1.PC, c2.PC)
	}
}

func TestCPU_RestoreRejectsGarbage(t *testing.T) {
	c := NewCPU()
	c.V[3] = 0x33
	if err := c.RestoreFromBytes([]byte("not a zip")); err == nil {
		t.Fatal("expected error for non-zip data")
	}
	if c.V[3] != 0x33 {
		t.Error("session mutated by failed restore")
	}
}

func TestCPU_RestoreRejectsMissingMemory(t *testing.T) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	if err := writeZipEntry(zw, stateEntry, []byte(`{"pc": 768}`)); err != nil {
		t.Fatalf("writeZipEntry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c := NewCPU()
	if err := c.RestoreFromBytes(buf.Bytes()); err == nil {
		t.Fatal("expected error for archive without memory image")
	}
	if c.PC != ProgramStart {
		t.Errorf("PC changed by failed restore: 0x%03X", c.PC)
	}
}

func TestCPU_RestoreRejectsShortMemory(t *testing.T) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	if err := writeZipEntry(zw, stateEntry, []byte(`{}`)); err != nil {
		t.Fatalf("writeZipEntry: %v", err)
	}
	if err := writeZipEntry(zw, memoryEntry, make([]byte, 100)); err != nil {
		t.Fatalf("writeZipEntry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c := NewCPU()
	if err := c.RestoreFromBytes(buf.Bytes()); err == nil {
		t.Fatal("expected error for truncated memory image")
	}
}

func TestCPU_HibernateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.sav")

	c1 := NewCPU()
	c1.V[9] = 0x99
	if err := c1.HibernateToFile(path); err != nil {
		t.Fatalf("HibernateToFile: %v", err)
	}

	c2 := NewCPU()
	if err := c2.RestoreFromFile(path); err != nil {
		t.Fatalf("RestoreFromFile: %v", err)
	}
	if c2.V[9] != 0x99 {
		t.Errorf("V9: got 0x%02X, want 0x99", c2.V[9])
	}

	if err := c2.RestoreFromFile(filepath.Join(t.TempDir(), "missing.sav")); err == nil {
		t.Error("expected error for missing file")
	}
}
