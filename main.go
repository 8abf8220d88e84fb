//go:build !js

package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/asm"
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

func main() {
	inPath := flag.String("in", "", "input assembly file path")
	outPath := flag.String("out", "", "output ROM file path (default: input with .ch8 extension)")
	runProgram := flag.Bool("run", false, "run the assembled ROM headless")
	runBinPath := flag.String("run-bin", "", "run an existing ROM headless")
	steps := flag.Int("steps", 1000, "number of instructions to execute when running headless")
	screenshot := flag.String("screenshot", "", "write the display to a PNG file after a headless run")
	disasmPath := flag.String("disasm", "", "print the disassembly of a ROM")
	debug := flag.Bool("debug", false, "log every executed instruction")
	quiet := flag.Bool("q", false, "perform operations quietly")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	logger := config.CreateLogger(*debug, *quiet)

	if *showVersion {
		fmt.Printf("version: %s\n", buildinfo.Version(version, commit, date))
		return
	}

	if *runProgram && *runBinPath != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -run-bin, not both")
		os.Exit(2)
	}

	if *disasmPath != "" {
		if err := printDisassembly(*disasmPath); err != nil {
			logger.Fatal("Disassembly failed", log.String("file", *disasmPath), log.Err(err))
		}
		return
	}

	assembledOutput := ""
	if *inPath != "" {
		source, err := os.ReadFile(*inPath)
		if err != nil {
			logger.Fatal("Reading input failed", log.String("file", *inPath), log.Err(err))
		}

		code, _, err := asm.Assemble(string(source))
		if err != nil {
			logger.Fatal("Assembly failed", log.Err(err))
		}

		output := *outPath
		if output == "" {
			output = defaultOutputPath(*inPath)
		}

		if err := writeBinary(output, code); err != nil {
			logger.Fatal("Writing ROM failed", log.String("file", output), log.Err(err))
		}

		logger.Info("Assembled", log.Int("bytes", len(code)), log.String("file", output))
		assembledOutput = output
	}

	if *inPath == "" && *runBinPath == "" && !*runProgram {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to assemble, -run to run assembled output, -run-bin <file> to run an existing ROM or -disasm <file>")
		flag.Usage()
		os.Exit(2)
	}

	runTarget := ""
	switch {
	case *runBinPath != "":
		runTarget = *runBinPath
	case *runProgram:
		if assembledOutput == "" {
			fmt.Fprintln(os.Stderr, "-run requires -in, or use -run-bin <file>")
			os.Exit(2)
		}
		runTarget = assembledOutput
	default:
		return
	}

	c, err := runBinary(logger, runTarget, *steps, *debug)
	if err != nil {
		logger.Fatal("Run failed", log.String("file", runTarget), log.Err(err))
	}
	fmt.Println(formatState(runTarget, c))

	if *screenshot != "" {
		white := color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
		black := color.RGBA{A: 0xFF}
		if err := c.SaveScreenshot(*screenshot, white, black); err != nil {
			logger.Fatal("Screenshot failed", log.Err(err))
		}
	}
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".ch8"
	}
	return strings.TrimSuffix(inPath, ext) + ".ch8"
}

func writeBinary(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func printDisassembly(path string) error {
	program, err := rom.Load(path)
	if err != nil {
		return err
	}
	for _, line := range cpu.DisassembleROM(program) {
		fmt.Println(line)
	}
	return nil
}

// runBinary loads the ROM and executes the given number of instructions
// without a display.
func runBinary(logger *log.Logger, path string, steps int, trace bool) (*cpu.CPU, error) {
	program, err := rom.Load(path)
	if err != nil {
		return nil, err
	}

	c := cpu.NewCPU()
	if err := c.LoadROM(program); err != nil {
		return nil, err
	}

	m := machine.New(c, machine.WithLogger(logger), machine.WithTrace(trace))
	for i := 0; i < steps; i++ {
		m.Iterate()
	}
	return c, nil
}

func formatState(path string, c *cpu.CPU) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run complete (%s): PC=0x%03X I=0x%03X SP=%d DT=%d ST=%d\n",
		path, c.PC, c.I, c.SP, c.Delay.Value(), c.Sound.Value())
	for i, v := range c.V {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "V%X=0x%02X", i, v)
	}
	return sb.String()
}
