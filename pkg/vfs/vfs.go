// Package vfs keeps snapshot slots in memory and mirrors them to a host
// directory.
package vfs

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/cpu"
)

// MaxStoreBytes is the total size all slots may occupy (1.44MB).
const MaxStoreBytes = 1474560

// QuickSlot is the slot used by the quick save and quick load keys.
const QuickSlot = "quick.sav"

// validSlotName restricts slot names to 8.3-style names that are safe to
// use as host file names.
var validSlotName = regexp.MustCompile(`^\.?[a-zA-Z0-9_]{1,12}(\.[a-zA-Z0-9]{1,3})?$`)

var (
	ErrFileNotFound    = errors.New("slot not found")
	ErrInvalidFilename = errors.New("invalid slot name")
	ErrQuotaExceeded   = errors.New("store quota exceeded")
)

type slot struct {
	data     []byte
	created  time.Time
	modified time.Time
}

// Store is an in-memory set of named snapshot slots. Changed slots are
// tracked until they are written to a host directory with PersistTo.
type Store struct {
	mu        sync.RWMutex
	slots     map[string]*slot
	dirty     map[string]bool
	usedBytes int
}

func NewStore() *Store {
	return &Store{
		slots: make(map[string]*slot),
		dirty: make(map[string]bool),
	}
}

// Write stores a copy of data in the named slot, replacing any previous
// content. The quota accounts for the size of the replaced slot.
func (s *Store) Write(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validSlotName.MatchString(name) {
		return errors.Wrap(ErrInvalidFilename, name)
	}

	oldSize := 0
	entry, exists := s.slots[name]
	if exists {
		oldSize = len(entry.data)
	}

	if s.usedBytes-oldSize+len(data) > MaxStoreBytes {
		return ErrQuotaExceeded
	}

	now := time.Now()
	if !exists {
		entry = &slot{created: now}
		s.slots[name] = entry
	}
	entry.data = append([]byte(nil), data...)
	entry.modified = now

	s.dirty[name] = true
	s.usedBytes += len(data) - oldSize
	return nil
}

// Read returns a copy of the named slot.
func (s *Store) Read(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), entry.data...), nil
}

// Delete removes a slot. The removal reaches the host directory on the
// next PersistTo.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookup(name)
	if err != nil {
		return err
	}

	s.usedBytes -= len(entry.data)
	delete(s.slots, name)
	s.dirty[name] = true
	return nil
}

// Meta returns the creation and modification time of a slot.
func (s *Store) Meta(name string) (created, modified time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.lookup(name)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return entry.created, entry.modified, nil
}

func (s *Store) lookup(name string) (*slot, error) {
	if !validSlotName.MatchString(name) {
		return nil, errors.Wrap(ErrInvalidFilename, name)
	}
	entry, ok := s.slots[name]
	if !ok {
		return nil, errors.Wrap(ErrFileNotFound, name)
	}
	return entry, nil
}

func (s *Store) FreeSpace() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MaxStoreBytes - s.usedBytes
}

// List returns the sorted slot names.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dirty reports whether any slot changed since the last PersistTo.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty) > 0
}

// SaveSession hibernates c into the named slot.
func (s *Store) SaveSession(name string, c *cpu.CPU) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return errors.Wrap(err, "hibernate session")
	}
	return s.Write(name, data)
}

// LoadSession restores c from the named slot.
func (s *Store) LoadSession(name string, c *cpu.CPU) error {
	data, err := s.Read(name)
	if err != nil {
		return err
	}
	if err := c.RestoreFromBytes(data); err != nil {
		return errors.Wrapf(err, "restore slot %s", name)
	}
	return nil
}

// LoadFrom populates the store from the files in a host directory. Files
// with invalid slot names are skipped. A missing directory is not an error.
func (s *Store) LoadFrom(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read store directory")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !validSlotName.MatchString(name) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		oldSize := 0
		if existing, ok := s.slots[name]; ok {
			oldSize = len(existing.data)
		}
		if s.usedBytes-oldSize+len(data) > MaxStoreBytes {
			return errors.Wrapf(ErrQuotaExceeded, "loading %s", name)
		}

		modified := time.Now()
		if info, err := entry.Info(); err == nil {
			modified = info.ModTime()
		}

		s.slots[name] = &slot{data: data, created: modified, modified: modified}
		s.usedBytes += len(data) - oldSize
	}

	return nil
}

// PersistTo writes all changed slots to dir and removes deleted ones. The
// directory is created if needed. Slots that fail to write or remove stay
// dirty.
func (s *Store) PersistTo(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create store directory")
	}

	// Collect under the lock, write without it.
	s.mu.Lock()
	pending := make(map[string]*slot, len(s.dirty))
	var deleted []string
	for name := range s.dirty {
		if entry, ok := s.slots[name]; ok {
			pending[name] = &slot{
				data:     append([]byte(nil), entry.data...),
				modified: entry.modified,
			}
		} else {
			deleted = append(deleted, name)
		}
		delete(s.dirty, name)
	}
	s.mu.Unlock()

	var firstErr error
	for _, name := range deleted {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			s.mu.Lock()
			s.dirty[name] = true
			s.mu.Unlock()
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "remove %s", name)
			}
		}
	}

	for name, entry := range pending {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, entry.data, 0644); err != nil {
			s.mu.Lock()
			s.dirty[name] = true
			s.mu.Unlock()
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "write %s", name)
			}
			continue
		}
		_ = os.Chtimes(path, time.Now(), entry.modified)
	}

	return firstErr
}

// Sync persists the store to dir every interval while it is dirty, and a
// final time when ctx is cancelled.
func (s *Store) Sync(ctx context.Context, logger *log.Logger, dir string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func() {
		if !s.Dirty() {
			return
		}
		if err := s.PersistTo(dir); err != nil {
			logger.Error("Persisting snapshot slots failed", log.String("dir", dir), log.Err(err))
			return
		}
		logger.Debug("Snapshot slots persisted", log.String("dir", dir))
	}

	for {
		select {
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
