package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/cpu"
)

func TestStore_Write(t *testing.T) {
	tests := []struct {
		name         string
		slot         string
		data         []byte
		expectErr    error
		expectedUsed int
	}{
		{
			name:         "Valid write",
			slot:         "quick.sav",
			data:         []byte{1, 2, 3},
			expectedUsed: 3,
		},
		{
			name:      "Invalid name special chars",
			slot:      "slot!.sav",
			data:      []byte{1},
			expectErr: ErrInvalidFilename,
		},
		{
			name:      "Invalid name too long",
			slot:      "verylongslotname.sav",
			data:      []byte{1},
			expectErr: ErrInvalidFilename,
		},
		{
			name:      "Invalid name path traversal",
			slot:      "../passwd",
			data:      []byte{1},
			expectErr: ErrInvalidFilename,
		},
		{
			name:      "Quota exceeded",
			slot:      "big.sav",
			data:      make([]byte, MaxStoreBytes+1),
			expectErr: ErrQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			err := s.Write(tt.slot, tt.data)
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("Write() error = %v, want %v", err, tt.expectErr)
				}
			} else if err != nil {
				t.Fatalf("Write() unexpected error: %v", err)
			}
			if used := MaxStoreBytes - s.FreeSpace(); used != tt.expectedUsed {
				t.Errorf("used bytes = %d, want %d", used, tt.expectedUsed)
			}
		})
	}
}

func TestStore_Read(t *testing.T) {
	s := NewStore()
	if err := s.Write("a.sav", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read("a.sav")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read = %q, want %q", got, "hello")
	}

	if _, err := s.Read("b.sav"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Read(missing) error = %v, want ErrFileNotFound", err)
	}
	if _, err := s.Read("bad/name"); !errors.Is(err, ErrInvalidFilename) {
		t.Errorf("Read(invalid) error = %v, want ErrInvalidFilename", err)
	}
}

func TestStore_CopiesData(t *testing.T) {
	s := NewStore()
	data := []byte{1, 2, 3}
	if err := s.Write("a.sav", data); err != nil {
		t.Fatal(err)
	}
	data[0] = 9

	got, _ := s.Read("a.sav")
	if got[0] != 1 {
		t.Error("Write did not copy the input")
	}
	got[1] = 9
	again, _ := s.Read("a.sav")
	if again[1] != 2 {
		t.Error("Read returned internal storage")
	}
}

func TestStore_OverwriteAccounting(t *testing.T) {
	s := NewStore()
	if err := s.Write("a.sav", make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("a.sav", make([]byte, 40)); err != nil {
		t.Fatal(err)
	}
	if free := s.FreeSpace(); free != MaxStoreBytes-40 {
		t.Errorf("FreeSpace = %d, want %d", free, MaxStoreBytes-40)
	}

	// Replacing a slot may use the space it frees.
	if err := s.Write("b.sav", make([]byte, MaxStoreBytes-40)); err != nil {
		t.Fatalf("filling the store: %v", err)
	}
	if err := s.Write("a.sav", make([]byte, 40)); err != nil {
		t.Errorf("same-size overwrite at full quota: %v", err)
	}
	if err := s.Write("a.sav", make([]byte, 41)); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("growing past quota: error = %v, want ErrQuotaExceeded", err)
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	s := NewStore()
	for _, name := range []string{"c.sav", "a.sav", "b.sav"} {
		if err := s.Write(name, []byte{1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete("b.sav"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("b.sav"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Delete twice error = %v, want ErrFileNotFound", err)
	}

	got := s.List()
	if len(got) != 2 || got[0] != "a.sav" || got[1] != "c.sav" {
		t.Errorf("List = %v, want [a.sav c.sav]", got)
	}
	if free := s.FreeSpace(); free != MaxStoreBytes-2 {
		t.Errorf("FreeSpace = %d, want %d", free, MaxStoreBytes-2)
	}
}

func TestStore_Meta(t *testing.T) {
	s := NewStore()
	if err := s.Write("a.sav", []byte{1}); err != nil {
		t.Fatal(err)
	}
	created, modified, err := s.Meta("a.sav")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if created.IsZero() || modified.Before(created) {
		t.Errorf("Meta = %v, %v", created, modified)
	}
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	s := NewStore()
	if err := s.Write("a.sav", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("b.sav", []byte("two")); err != nil {
		t.Fatal(err)
	}
	if !s.Dirty() {
		t.Fatal("expected store to be dirty after writes")
	}
	if err := s.PersistTo(dir); err != nil {
		t.Fatalf("PersistTo: %v", err)
	}
	if s.Dirty() {
		t.Error("expected store to be clean after PersistTo")
	}

	if err := s.Delete("b.sav"); err != nil {
		t.Fatal(err)
	}
	if err := s.PersistTo(dir); err != nil {
		t.Fatalf("PersistTo after delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.sav")); !os.IsNotExist(err) {
		t.Error("deleted slot still present on host")
	}

	// Files that are not valid slot names are ignored.
	if err := os.WriteFile(filepath.Join(dir, "not a slot"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	loaded := NewStore()
	if err := loaded.LoadFrom(dir); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	names := loaded.List()
	if len(names) != 1 || names[0] != "a.sav" {
		t.Fatalf("loaded slots = %v, want [a.sav]", names)
	}
	data, _ := loaded.Read("a.sav")
	if string(data) != "one" {
		t.Errorf("loaded data = %q, want %q", data, "one")
	}
	if loaded.Dirty() {
		t.Error("freshly loaded store should be clean")
	}
}

func TestStore_LoadFromTwiceKeepsQuota(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.sav"), make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore()
	for i := 0; i < 2; i++ {
		if err := s.LoadFrom(dir); err != nil {
			t.Fatalf("LoadFrom #%d: %v", i+1, err)
		}
	}
	if free := s.FreeSpace(); free != MaxStoreBytes-100 {
		t.Errorf("FreeSpace = %d, want %d", free, MaxStoreBytes-100)
	}
}

func TestStore_FailedRemoveStaysDirty(t *testing.T) {
	dir := t.TempDir()

	s := NewStore()
	if err := s.Write("a.sav", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("a.sav"); err != nil {
		t.Fatal(err)
	}

	// A non-empty directory in place of the slot file cannot be removed.
	blocker := filepath.Join(dir, "a.sav")
	if err := os.MkdirAll(blocker, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blocker, "x"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.PersistTo(dir); err == nil {
		t.Fatal("PersistTo: expected remove error")
	}
	if !s.Dirty() {
		t.Fatal("failed removal should leave the slot dirty")
	}

	if err := os.Remove(filepath.Join(blocker, "x")); err != nil {
		t.Fatal(err)
	}
	if err := s.PersistTo(dir); err != nil {
		t.Fatalf("PersistTo retry: %v", err)
	}
	if s.Dirty() {
		t.Error("expected store to be clean after retry")
	}
	if _, err := os.Stat(blocker); !os.IsNotExist(err) {
		t.Error("deleted slot still present on host")
	}
}

func TestStore_LoadFromMissingDir(t *testing.T) {
	s := NewStore()
	if err := s.LoadFrom(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("LoadFrom(missing) = %v, want nil", err)
	}
}

func TestStore_Sessions(t *testing.T) {
	s := NewStore()

	c1 := cpu.NewCPU()
	c1.V[4] = 0x44
	c1.PC = 0x246
	if err := s.SaveSession(QuickSlot, c1); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	c2 := cpu.NewCPU()
	if err := s.LoadSession(QuickSlot, c2); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if c2.V[4] != 0x44 || c2.PC != 0x246 {
		t.Errorf("restored V4=0x%02X PC=0x%03X", c2.V[4], c2.PC)
	}

	if err := s.LoadSession("none.sav", c2); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("LoadSession(missing) error = %v, want ErrFileNotFound", err)
	}

	if err := s.Write("junk.sav", []byte("junk")); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadSession("junk.sav", c2); err == nil {
		t.Error("expected error restoring a corrupt slot")
	}
}

func TestStore_SyncFlushesOnCancel(t *testing.T) {
	dir := t.TempDir()
	s := NewStore()
	if err := s.Write(QuickSlot, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Sync(ctx, log.NewTestLogger(t), dir, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sync did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, QuickSlot)); err != nil {
		t.Errorf("slot not flushed: %v", err)
	}
}
