package main

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"gochip8/pkg/cpu"
	"gochip8/pkg/machine"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

func TestRenderFrame(t *testing.T) {
	var f cpu.Frame
	f[0][0] = true
	f[1][1] = true
	f[0][2] = true
	f[1][2] = true

	out := renderFrame(f, white, black)
	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	assert.Len(t, lines, cpu.ScreenHeight/2)

	first := lines[0]
	assert.True(t, strings.HasPrefix(first, "\x1b[38;2;255;255;255m\x1b[48;2;0;0;0m▀▄█ "), first)
	assert.True(t, strings.HasSuffix(first, resetStyle))
}

func TestScreenFlushOnlyWhenDirty(t *testing.T) {
	var buf bytes.Buffer
	s := newScreen(&buf, white, black)

	assert.NoError(t, s.Flush(""))
	assert.True(t, buf.Len() > 0)

	buf.Reset()
	assert.NoError(t, s.Flush(""))
	assert.Equal(t, 0, buf.Len())

	var frame [cpu.DisplaySize]byte
	frame[0] = 0x80
	s.Render(frame)
	assert.NoError(t, s.Flush("status"))
	assert.Contains(t, buf.String(), "▀")
	assert.Contains(t, buf.String(), "status")
}

func TestHandleKey(t *testing.T) {
	c := cpu.NewCPU()
	m := machine.New(c, machine.WithSingleStep(true))

	quit := false
	cancel := func() { quit = true }

	handleKey('w', m, cancel)
	handleKey(keyStep, m, cancel)
	m.Iterate()
	assert.True(t, c.Keys.Key(0x5))
	assert.Equal(t, uint64(1), m.Steps())

	handleKey('p', m, cancel)
	assert.False(t, quit)
	handleKey(keyEscape, m, cancel)
	assert.True(t, quit)
}
