package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	stateEntry  = "cpu_state.json"
	memoryEntry = "memory.bin"
)

// humanReadableState is the JSON-serializable snapshot of the session's
// control state. Memory is stored separately as a raw image.
type humanReadableState struct {
	V        [16]byte       `json:"v"`
	I        uint16         `json:"i"`
	PC       uint16         `json:"pc"`
	SP       uint8          `json:"sp"`
	Delay    byte           `json:"delay_timer"`
	Sound    byte           `json:"sound_timer"`
	Keys     [KeyCount]bool `json:"keys"`
	LastKey  byte           `json:"last_key"`
	Keypress bool           `json:"keypress"`
	Awaiting bool           `json:"awaiting"`
}

// HibernateToBytes serialises the complete session into an in-memory ZIP
// archive and returns the raw bytes.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := humanReadableState{
		V:        c.V,
		I:        c.I,
		PC:       c.PC,
		SP:       c.SP,
		Delay:    c.Delay.Value(),
		Sound:    c.Sound.Value(),
		Keys:     c.Keys.keys,
		LastKey:  c.Keys.lastKey,
		Keypress: c.Keys.keypress,
		Awaiting: c.Keys.awaiting,
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal cpu state")
	}
	if err := writeZipEntry(zw, stateEntry, jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, memoryEntry, c.Memory[:]); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip")
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes applies an archive produced by HibernateToBytes. The
// session is left untouched if the archive is incomplete or malformed.
func (c *CPU) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(err, "open zip")
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, stateEntry)
	if err != nil {
		return err
	}
	var state humanReadableState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return errors.Wrap(err, "unmarshal cpu state")
	}

	memData, err := readZipEntry(fileMap, memoryEntry)
	if err != nil {
		return err
	}
	if len(memData) != MemorySize {
		return errors.Errorf("memory image has %d bytes, want %d", len(memData), MemorySize)
	}

	c.V = state.V
	c.I = state.I
	c.PC = state.PC
	c.SP = state.SP
	c.Delay.Set(state.Delay)
	c.Sound.Set(state.Sound)
	c.Keys = Keyboard{
		keys:     state.Keys,
		lastKey:  state.LastKey,
		keypress: state.Keypress,
		awaiting: state.Awaiting,
	}
	copy(c.Memory[:], memData)
	c.present()
	return nil
}

// HibernateToFile writes the hibernation archive to the given file path.
func (c *CPU) HibernateToFile(path string) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from the given file path and
// restores the session.
func (c *CPU) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create zip entry %q", name)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, errors.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open zip entry %q", name)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
