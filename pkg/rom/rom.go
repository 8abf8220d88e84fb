// Package rom reads program images from the host file system.
package rom

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"gochip8/pkg/cpu"
)

// ErrShortRead is returned when fewer bytes were read than the file size.
var ErrShortRead = errors.New("short read")

// Resolve converts path to an absolute path and returns it together with
// the directory containing it.
func Resolve(path string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(path)
	if err != nil {
		return "", "", errors.Wrapf(err, "resolve %q", path)
	}
	return fullPath, filepath.Dir(fullPath), nil
}

// Load reads the ROM at path. Files larger than cpu.MaxROMSize are rejected
// before any data is read.
func Load(path string) ([]byte, error) {
	fullPath, _, err := Resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, errors.Wrap(err, "open rom")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat rom")
	}
	if info.IsDir() {
		return nil, errors.Errorf("rom %q is a directory", fullPath)
	}
	return read(f, info.Size())
}

func read(r io.Reader, size int64) ([]byte, error) {
	if size > int64(cpu.MaxROMSize) {
		return nil, errors.Wrapf(cpu.ErrROMTooLarge, "%d bytes > %d bytes", size, cpu.MaxROMSize)
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(ErrShortRead, "read %d of %d bytes", n, size)
		}
		return nil, errors.Wrap(err, "read rom")
	}
	return buf, nil
}
