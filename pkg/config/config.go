// Package config handles front end configuration and setup.
package config

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/colornames"

	"gochip8/pkg/machine"
)

// Defaults for the front end options.
const (
	DefaultFrequency = 500
	DefaultScale     = 10
	DefaultFG        = "white"
	DefaultBG        = "black"
	DefaultStorage   = "gochip8_saves"
)

// Options holds the settings shared by the desktop and console front ends.
type Options struct {
	ROM        string
	Frequency  int
	Scale      int
	SingleStep bool
	Trace      bool
	Debug      bool
	Quiet      bool
	FG         string
	BG         string
	Storage    string
}

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// ParseFlags parses the command line arguments (without the program name)
// of a front end. The ROM file is the only positional argument.
func ParseFlags(name string, args []string) (Options, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var opts Options
	readOptionFlags(flags, &opts)

	err := flags.Parse(args)
	rest := flags.Args()
	if err != nil || len(rest) != 1 {
		return opts, &UsageError{name: name, flags: flags}
	}
	opts.ROM = rest[0]

	if err := validate(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func readOptionFlags(flags *flag.FlagSet, opts *Options) {
	flags.IntVar(&opts.Frequency, "hz", DefaultFrequency, "instructions executed per second")
	flags.IntVar(&opts.Scale, "scale", DefaultScale, "window pixels per display pixel")
	flags.BoolVar(&opts.SingleStep, "step", false, "start in single-step debug mode")
	flags.BoolVar(&opts.Trace, "trace", false, "log every executed instruction (requires -debug)")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
	flags.StringVar(&opts.FG, "fg", DefaultFG, "foreground colour name or #rrggbb")
	flags.StringVar(&opts.BG, "bg", DefaultBG, "background colour name or #rrggbb")
	flags.StringVar(&opts.Storage, "saves", DefaultStorage, "directory for snapshot slots")
}

func validate(opts Options) error {
	if opts.Frequency <= 0 || opts.Frequency > machine.MaxFrequency {
		return errors.Errorf("invalid frequency %d, must be 1-%d", opts.Frequency, machine.MaxFrequency)
	}
	if opts.Trace && !opts.Debug {
		return errors.New("-trace requires -debug")
	}
	if opts.Scale <= 0 {
		return errors.Errorf("invalid scale %d", opts.Scale)
	}
	if _, err := ParseColor(opts.FG); err != nil {
		return err
	}
	if _, err := ParseColor(opts.BG); err != nil {
		return err
	}
	return nil
}

// Colors resolves the foreground and background colours.
func (o Options) Colors() (fg, bg color.RGBA, err error) {
	if fg, err = ParseColor(o.FG); err != nil {
		return fg, bg, err
	}
	bg, err = ParseColor(o.BG)
	return fg, bg, err
}

// ParseColor resolves an SVG colour name or a #rrggbb value.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[s]; ok {
		return c, nil
	}

	if strings.HasPrefix(s, "#") && len(s) == 7 {
		var r, g, b uint8
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err == nil {
			return color.RGBA{R: r, G: g, B: b, A: 0xFF}, nil
		}
	}
	return color.RGBA{}, errors.Errorf("unknown colour %q", s)
}

// UsageError represents an error that should show usage information
type UsageError struct {
	name  string
	flags *flag.FlagSet
}

func (e *UsageError) Error() string {
	return "invalid arguments"
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: %s [options] <rom file>\n\n", e.name)
	e.flags.SetOutput(nil)
	e.flags.PrintDefaults()
	fmt.Println()
}
