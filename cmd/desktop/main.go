package main

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
	"gochip8/pkg/machine"
	"gochip8/pkg/rom"
	"gochip8/pkg/vfs"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const syncInterval = 3 * time.Second

// keypad holds the host key for each keypad nibble, laid out like
// cpu.KeySymbols.
var keypad = [cpu.KeyCount]ebiten.Key{
	ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4,
	ebiten.KeyQ, ebiten.KeyW, ebiten.KeyE, ebiten.KeyR,
	ebiten.KeyA, ebiten.KeyS, ebiten.KeyD, ebiten.KeyF,
	ebiten.KeyZ, ebiten.KeyX, ebiten.KeyC, ebiten.KeyV,
}

type Game struct {
	ctx    context.Context
	logger *log.Logger
	m      *machine.Machine
	store  *vfs.Store

	scale  int
	fg, bg color.RGBA
	status string

	screenImg *ebiten.Image // reused 64×32 canvas
	frame     [cpu.DisplaySize]byte
	dirty     bool
}

// Render caches the frame pushed by the CPU after CLS and DRW. It runs on the
// update goroutine, which ebiten shares with Draw.
func (g *Game) Render(frame [cpu.DisplaySize]byte) {
	g.frame = frame
	g.dirty = true
}

func (g *Game) Update() error {
	if g.ctx.Err() != nil || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	for nibble, key := range keypad {
		if inpututil.IsKeyJustPressed(key) {
			g.m.Post(machine.Event{Key: byte(nibble), Down: true})
		}
		if inpututil.IsKeyJustReleased(key) {
			g.m.Post(machine.Event{Key: byte(nibble), Down: false})
		}
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyF6):
		g.m.SetSingleStep(!g.m.SingleStep())
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		g.m.Advance()
	case inpututil.IsKeyJustPressed(ebiten.KeyF5):
		g.quickSave()
	case inpututil.IsKeyJustPressed(ebiten.KeyF9):
		g.quickLoad()
	case inpututil.IsKeyJustPressed(ebiten.KeyF12):
		g.screenshot()
	}

	g.runFrame(ebiten.TPS())
	return nil
}

// runFrame executes one update's share of instructions and ticks the timers
// once, so the timers follow the update rate.
func (g *Game) runFrame(tps int) {
	for i := stepsPerFrame(g.m.Frequency(), tps); i > 0; i-- {
		g.m.Iterate()
	}
	g.m.Tick()
}

// stepsPerFrame spreads the instruction rate over the update rate.
func stepsPerFrame(frequency, tps int) int {
	if tps <= 0 {
		return 1
	}
	if n := frequency / tps; n > 0 {
		return n
	}
	return 1
}

func (g *Game) quickSave() {
	if err := g.store.SaveSession(vfs.QuickSlot, g.m.CPU()); err != nil {
		g.logger.Error("Quick save failed", log.Err(err))
		g.status = "save failed"
		return
	}
	g.logger.Info("Session saved", log.String("slot", vfs.QuickSlot))
	g.status = "saved"
}

func (g *Game) quickLoad() {
	if err := g.store.LoadSession(vfs.QuickSlot, g.m.CPU()); err != nil {
		g.logger.Error("Quick load failed", log.Err(err))
		g.status = "load failed"
		return
	}
	g.logger.Info("Session restored", log.String("slot", vfs.QuickSlot))
	g.status = "loaded"
}

func (g *Game) screenshot() {
	name := fmt.Sprintf("chip8_%s.png", time.Now().Format("20060102_150405"))
	if err := g.m.CPU().SaveScreenshot(name, g.fg, g.bg); err != nil {
		g.logger.Error("Screenshot failed", log.Err(err))
		return
	}
	g.logger.Info("Screenshot saved", log.String("file", name))
	g.status = "screenshot " + name
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.screenImg == nil {
		g.screenImg = ebiten.NewImage(cpu.ScreenWidth, cpu.ScreenHeight)
	}

	if g.dirty {
		g.screenImg.WritePixels(cpu.FrameRGBA(g.frame, g.fg, g.bg))
		g.dirty = false
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.screenImg, op)

	status := g.status
	if g.m.SingleStep() {
		status = fmt.Sprintf("STEP PC=%03X %s  %s", g.m.CPU().PC, cpu.Disassemble(g.m.CPU().Peek()), status)
	}
	if status != "" {
		ebitenutil.DebugPrint(screen, status)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return cpu.ScreenWidth * g.scale, cpu.ScreenHeight * g.scale
}

func main() {
	opts, err := config.ParseFlags("chip8-desktop", os.Args[1:])
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

func run(ctx context.Context, logger *log.Logger, opts config.Options) error {
	game, err := newGame(ctx, logger, opts)
	if err != nil {
		return err
	}

	if err := game.store.LoadFrom(opts.Storage); err != nil {
		logger.Warn("Loading snapshot slots failed", log.String("dir", opts.Storage), log.Err(err))
	}

	// Flush dirty slots in the background and once more on exit.
	syncCtx, stopSync := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		game.store.Sync(syncCtx, logger, opts.Storage, syncInterval)
	}()
	defer func() {
		stopSync()
		wg.Wait()
	}()

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(cpu.ScreenWidth*opts.Scale, cpu.ScreenHeight*opts.Scale)
	ebiten.SetWindowTitle("gochip8 - " + filepath.Base(opts.ROM))

	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	logger.Info("Stopped", log.String("steps", fmt.Sprint(game.m.Steps())))
	return nil
}

func newGame(ctx context.Context, logger *log.Logger, opts config.Options) (*Game, error) {
	fg, bg, err := opts.Colors()
	if err != nil {
		return nil, err
	}

	program, err := rom.Load(opts.ROM)
	if err != nil {
		return nil, err
	}
	c := cpu.NewCPU()
	if err := c.LoadROM(program); err != nil {
		return nil, err
	}
	logger.Info("ROM loaded", log.String("file", opts.ROM), log.Int("size", len(program)))

	m := machine.New(c,
		machine.WithFrequency(opts.Frequency),
		machine.WithSingleStep(opts.SingleStep),
		machine.WithTrace(opts.Trace),
		machine.WithFrameTimers(true),
		machine.WithLogger(logger),
	)

	g := &Game{
		ctx:    ctx,
		logger: logger,
		m:      m,
		store:  vfs.NewStore(),
		scale:  opts.Scale,
		fg:     fg,
		bg:     bg,
		frame:  c.Display().Packed(),
		dirty:  true,
	}
	c.Renderer = g
	return g, nil
}
