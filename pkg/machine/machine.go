// Package machine drives a CPU session: it forwards input events, steps the
// interpreter at a fixed rate and ticks the timers at 60Hz.
package machine

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/cpu"
)

// Defaults for the outer loop.
const (
	DefaultFrequency = 500

	// MaxFrequency keeps the Run delay at one microsecond or more.
	MaxFrequency = 1_000_000

	// TimerPeriod is the minimum time between two timer ticks.
	TimerPeriod = 17 * time.Millisecond

	eventQueueSize = 64
)

// Event is a key transition reported by a front end.
type Event struct {
	Key  byte
	Down bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithFrequency sets the number of instructions executed per second by Run.
func WithFrequency(hz int) Option {
	return func(m *Machine) {
		if hz > 0 && hz <= MaxFrequency {
			m.frequency = hz
		}
	}
}

// WithSingleStep starts the machine in single-step mode.
func WithSingleStep(enabled bool) Option {
	return func(m *Machine) { m.singleStep.Store(enabled) }
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithFrameTimers hands the timers to the caller: Iterate no longer ticks
// them and the front end calls Tick once per 60Hz frame instead.
func WithFrameTimers(enabled bool) Option {
	return func(m *Machine) { m.frameTimers = enabled }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(enabled bool) Option {
	return func(m *Machine) { m.trace = enabled }
}

// Machine is the outer loop around a CPU session. Iterate and Run must be
// called from a single goroutine; Post, Advance and SetSingleStep are safe to
// call from any goroutine.
type Machine struct {
	cpu    *cpu.CPU
	logger *log.Logger
	now    func() time.Time

	frequency   int
	trace       bool
	frameTimers bool
	singleStep  atomic.Bool

	events  chan Event
	advance chan struct{}

	lastTick time.Time
	steps    uint64
	ticks    uint64
}

// New creates a machine for c.
func New(c *cpu.CPU, opts ...Option) *Machine {
	m := &Machine{
		cpu:       c,
		now:       time.Now,
		frequency: DefaultFrequency,
		events:    make(chan Event, eventQueueSize),
		advance:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		cfg := log.DefaultConfig()
		cfg.Level = log.ErrorLevel
		m.logger = log.NewWithConfig(cfg)
	}
	m.lastTick = m.now()
	return m
}

// CPU returns the driven session.
func (m *Machine) CPU() *cpu.CPU {
	return m.cpu
}

// Post queues a key event. The event is applied to the keyboard at the start
// of the next iteration. Events are dropped when the queue is full.
func (m *Machine) Post(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	default:
		m.logger.Warn("Input queue full, dropping key event", log.Hex("key", ev.Key))
		return false
	}
}

// Advance allows one instruction to execute while in single-step mode.
// Repeated calls before the next iteration are coalesced.
func (m *Machine) Advance() {
	select {
	case m.advance <- struct{}{}:
	default:
	}
}

func (m *Machine) SetSingleStep(enabled bool) {
	m.singleStep.Store(enabled)
}

func (m *Machine) SingleStep() bool {
	return m.singleStep.Load()
}

// Frequency returns the configured instructions per second.
func (m *Machine) Frequency() int {
	return m.frequency
}

// Steps returns the number of executed instructions.
func (m *Machine) Steps() uint64 {
	return m.steps
}

// Ticks returns the number of timer ticks.
func (m *Machine) Ticks() uint64 {
	return m.ticks
}

// Iterate runs one pass of the outer loop: pending input is applied, one
// instruction is executed unless single-step mode holds it back, and the
// timers are ticked once more than TimerPeriod has elapsed since the last
// tick. With WithFrameTimers the timers are left to Tick.
func (m *Machine) Iterate() {
	m.drainEvents()

	if m.shouldStep() {
		m.step()
	}

	if m.frameTimers {
		return
	}
	now := m.now()
	if now.Sub(m.lastTick) > TimerPeriod {
		m.lastTick = now
		m.Tick()
	}
}

// Tick decrements both timers once.
func (m *Machine) Tick() {
	m.cpu.TickTimers()
	m.ticks++
}

// Run iterates until ctx is cancelled, sleeping 1s/frequency between
// iterations. It returns the context error.
func (m *Machine) Run(ctx context.Context) error {
	delay := time.Second / time.Duration(m.frequency)
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	m.logger.Debug("Machine started",
		log.Int("frequency", m.frequency),
		log.String("delay", delay.String()))

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Machine stopped", log.String("steps", strconv.FormatUint(m.steps, 10)))
			return ctx.Err()
		case <-ticker.C:
			m.Iterate()
		}
	}
}

func (m *Machine) drainEvents() {
	for {
		select {
		case ev := <-m.events:
			m.cpu.Keys.Notify(ev.Key, ev.Down)
		default:
			return
		}
	}
}

func (m *Machine) shouldStep() bool {
	if !m.singleStep.Load() {
		return true
	}
	select {
	case <-m.advance:
		return true
	default:
		return false
	}
}

func (m *Machine) step() {
	if m.trace {
		word := m.cpu.Peek()
		m.logger.Debug("Step",
			log.Hex("pc", m.cpu.PC),
			log.Hex("opcode", word),
			log.String("instruction", cpu.Disassemble(word)))
	}
	m.cpu.Step()
	m.steps++
}
