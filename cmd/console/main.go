// Package main implements a terminal front end that runs a ROM and draws the
// display with ANSI half block characters.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/term"

	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
	"gochip8/pkg/machine"
	"gochip8/pkg/rom"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const (
	// Terminals only report key presses, so every press is released after
	// keyHold.
	keyHold = 120 * time.Millisecond

	frameInterval = time.Second / 60

	keyCtrlC  = 0x03
	keyEscape = 0x1b
	keyStep   = 'n'
)

func main() {
	opts, err := config.ParseFlags("chip8-console", os.Args[1:])
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *config.UsageError
		if errors.As(err, &usageErr) {
			fmt.Printf("version: %s\n\n", buildinfo.Version(version, commit, date))
			usageErr.ShowUsage()
		} else {
			logger.Error("Invalid options", log.Err(err))
		}
		os.Exit(1)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	if err := run(app.Context(), logger, opts); err != nil {
		logger.Fatal("Running ROM failed", log.Err(err))
	}
}

func run(parent context.Context, logger *log.Logger, opts config.Options) error {
	fg, bg, err := opts.Colors()
	if err != nil {
		return err
	}

	program, err := rom.Load(opts.ROM)
	if err != nil {
		return err
	}
	c := cpu.NewCPU()
	if err := c.LoadROM(program); err != nil {
		return err
	}
	logger.Info("ROM loaded", log.String("file", opts.ROM), log.Int("size", len(program)))

	scr := newScreen(os.Stdout, fg, bg)
	c.Renderer = scr

	m := machine.New(c,
		machine.WithFrequency(opts.Frequency),
		machine.WithSingleStep(opts.SingleStep),
		machine.WithTrace(opts.Trace),
		machine.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer func() { _ = term.Restore(fd, state) }()
	}

	fmt.Print(clearScreen + hideCursor)
	defer fmt.Print(resetStyle + showCursor)

	go readInput(os.Stdin, m, cancel)
	go drawLoop(ctx, scr, m)

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Debug("Stopped", log.String("steps", fmt.Sprint(m.Steps())))
	return nil
}

// readInput forwards keypad symbols to the machine until stdin closes.
func readInput(r io.Reader, m *machine.Machine, quit context.CancelFunc) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			handleKey(b, m, quit)
		}
	}
}

func handleKey(b byte, m *machine.Machine, quit context.CancelFunc) {
	switch b {
	case keyCtrlC, keyEscape:
		quit()
		return
	case keyStep:
		if m.SingleStep() {
			m.Advance()
			return
		}
	}

	key, ok := cpu.KeyForSymbol(rune(b))
	if !ok {
		return
	}
	m.Post(machine.Event{Key: key, Down: true})
	time.AfterFunc(keyHold, func() {
		m.Post(machine.Event{Key: key, Down: false})
	})
}

func drawLoop(ctx context.Context, scr *screen, m *machine.Machine) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := "esc: quit"
			if m.SingleStep() {
				status = "single step, n: advance, esc: quit"
			}
			if err := scr.Flush(status); err != nil {
				return
			}
		}
	}
}
