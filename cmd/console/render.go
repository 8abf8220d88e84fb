package main

import (
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"

	"gochip8/pkg/cpu"
)

const (
	clearScreen = "\x1b[2J"
	cursorHome  = "\x1b[H"
	hideCursor  = "\x1b[?25l"
	showCursor  = "\x1b[?25h"
	resetStyle  = "\x1b[0m"
)

// halfBlocks is indexed by top<<1 | bottom.
var halfBlocks = [4]string{" ", "▄", "▀", "█"}

// screen collects frames from the interpreter and draws the latest one to a
// terminal. Render is called on the machine goroutine, Flush on the drawing
// goroutine.
type screen struct {
	mu    sync.Mutex
	frame [cpu.DisplaySize]byte
	dirty bool

	out    io.Writer
	fg, bg color.RGBA
}

func newScreen(out io.Writer, fg, bg color.RGBA) *screen {
	return &screen{out: out, fg: fg, bg: bg, dirty: true}
}

func (s *screen) Render(frame [cpu.DisplaySize]byte) {
	s.mu.Lock()
	s.frame = frame
	s.dirty = true
	s.mu.Unlock()
}

// Flush draws the latest frame if it changed since the last call.
func (s *screen) Flush(status string) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	frame := s.frame
	s.dirty = false
	s.mu.Unlock()

	_, err := io.WriteString(s.out, cursorHome+renderFrame(cpu.DecodeFrame(frame), s.fg, s.bg)+status+"\r\n")
	return err
}

// renderFrame draws two display rows per terminal line using half block
// characters. Lines end with CR LF because the terminal is in raw mode.
func renderFrame(f cpu.Frame, fg, bg color.RGBA) string {
	var sb strings.Builder
	sb.Grow(cpu.ScreenHeight / 2 * (cpu.ScreenWidth*3 + 48))

	for y := 0; y < cpu.ScreenHeight; y += 2 {
		fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm", fg.R, fg.G, fg.B, bg.R, bg.G, bg.B)
		for x := 0; x < cpu.ScreenWidth; x++ {
			idx := 0
			if f[y][x] {
				idx |= 2
			}
			if f[y+1][x] {
				idx |= 1
			}
			sb.WriteString(halfBlocks[idx])
		}
		sb.WriteString(resetStyle + "\r\n")
	}
	return sb.String()
}
