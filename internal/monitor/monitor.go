// Package monitor implements the LIN monitor's dispatch loop: it services
// the periodic subsystems, reports bus idleness and error flags, prints
// every received frame and turns configured signals into actuator states.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/logging"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/timer"
)

const (
	// IdleTimeout is how long the bus may stay silent before a waiting
	// line is printed.
	IdleTimeout = 3000 * time.Millisecond
	// ErrorReportInterval throttles error-flag reports.
	ErrorReportInterval = 1000 * time.Millisecond
	// WaitingMessage is printed on every idle report.
	WaitingMessage = "Waiting for LIN frames..."
)

// Printer is the diagnostic text output.
type Printer interface {
	Print(text string)
	Println()
	PrintChar(c byte)
	PrintHex2(b byte)
}

// Source yields decoded frames and accumulated bus error flags.
type Source interface {
	ReadNextFrame() (lin.Frame, bool)
	GetAndClearErrorFlags() lin.ErrorFlags
	PrintErrorFlags(w lin.TextSink, flags lin.ErrorFlags)
}

// Timer measures the time since its last restart.
type Timer interface {
	Restart()
	ElapsedMillis() int64
}

// Servicer is a subsystem advanced once per loop iteration.
type Servicer interface {
	Service()
}

// Indicator is a pulse-driven status output.
type Indicator interface {
	Servicer
	Pulse()
}

// Actuator follows a level signal.
type Actuator interface {
	Servicer
	SetState(on bool)
}

// Transition is a change of a rule's signal state.
type Transition struct {
	Rule  string
	State bool
	ID    byte
	At    time.Time
}

type nopIndicator struct{}

func (nopIndicator) Pulse()   {}
func (nopIndicator) Service() {}

// Option configures a Monitor.
type Option func(*Monitor)

// WithIndicators sets the error, frame and status indicators. Nil entries
// keep a no-op indicator.
func WithIndicators(errors, frames, status Indicator) Option {
	return func(m *Monitor) {
		if errors != nil {
			m.errLED = errors
		}
		if frames != nil {
			m.frameLED = frames
		}
		if status != nil {
			m.statusLED = status
		}
	}
}

// WithActuator registers an actuator under the name rules refer to.
func WithActuator(name string, a Actuator) Option {
	return func(m *Monitor) { m.actuators[name] = a }
}

// WithRules replaces the default signal rules.
func WithRules(rules []Rule) Option {
	return func(m *Monitor) { m.rules = append([]Rule(nil), rules...) }
}

// WithService adds subsystems serviced after the built-in ones.
func WithService(s ...Servicer) Option {
	return func(m *Monitor) { m.extra = append(m.extra, s...) }
}

// WithClock replaces the system clock.
func WithClock(c timer.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithTimers replaces the idle and error-report timers. A nil timer keeps
// the clock-driven default.
func WithTimers(idle, flush Timer) Option {
	return func(m *Monitor) { m.idle, m.flush = idle, flush }
}

// WithChecksumMode selects the checksum used to validate frames.
func WithChecksumMode(mode lin.ChecksumMode) Option {
	return func(m *Monitor) { m.mode = mode }
}

// WithFrameExport receives every valid frame. fn must not block.
func WithFrameExport(fn func(lin.Frame)) Option {
	return func(m *Monitor) { m.export = fn }
}

// WithSignalHook receives rule state transitions. fn must not block.
func WithSignalHook(fn func(Transition)) Option {
	return func(m *Monitor) { m.onSignal = fn }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithPace waits d between iterations in Run. Zero runs the loop freely.
func WithPace(d time.Duration) Option {
	return func(m *Monitor) { m.pace = d }
}

type ruleState struct {
	rule  Rule
	act   Actuator
	on    bool
	known bool
}

// Monitor owns all loop state. Step and Run must be called from a single
// goroutine.
type Monitor struct {
	src Source
	out Printer

	errLED, frameLED, statusLED Indicator
	actuators                   map[string]Actuator
	rules                       []Rule
	extra                       []Servicer
	clock                       timer.Clock
	mode                        lin.ChecksumMode
	export                      func(lin.Frame)
	onSignal                    func(Transition)
	log                         *slog.Logger
	pace                        time.Duration

	services []Servicer
	states   []ruleState
	idle     Timer
	flush    Timer
	pending  lin.ErrorFlags
	rate     *timer.RateMeter
}

// New builds a monitor reading from src and printing to out. If out also
// implements Servicer it is flushed at the start of every iteration.
func New(src Source, out Printer, opts ...Option) (*Monitor, error) {
	if src == nil || out == nil {
		return nil, fmt.Errorf("monitor: source and printer are required")
	}
	m := &Monitor{
		src:       src,
		out:       out,
		errLED:    nopIndicator{},
		frameLED:  nopIndicator{},
		statusLED: nopIndicator{},
		actuators: make(map[string]Actuator),
		rules:     DefaultRules(),
		clock:     timer.System,
		log:       logging.L(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.clock == nil {
		m.clock = timer.System
	}
	for _, r := range m.rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		act, ok := m.actuators[r.Action]
		if !ok {
			return nil, fmt.Errorf("%w %q: unknown action %q", ErrInvalidRule, r.Name, r.Action)
		}
		m.states = append(m.states, ruleState{rule: r, act: act})
	}
	if s, ok := out.(Servicer); ok {
		m.services = append(m.services, s)
	}
	for _, a := range m.actuators {
		m.services = append(m.services, a)
	}
	m.services = append(m.services, m.errLED, m.frameLED, m.statusLED)
	m.services = append(m.services, m.extra...)
	if m.idle == nil {
		m.idle = timer.New(m.clock)
	}
	if m.flush == nil {
		m.flush = timer.New(m.clock)
	}
	m.rate = timer.NewRateMeter(m.clock, time.Second, metrics.SetLoopRate)
	return m, nil
}

// Step runs one loop iteration: service subsystems, apply the idle and
// error policies, then handle at most one frame.
func (m *Monitor) Step() {
	m.rate.Tick()
	for _, s := range m.services {
		s.Service()
	}
	m.checkIdle()
	m.checkErrors()
	if f, ok := m.src.ReadNextFrame(); ok {
		m.handleFrame(&f)
	}
}

// Run repeats Step until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor_start", "rules", len(m.states), "checksum", m.mode.String(), "pace", m.pace)
	defer m.log.Info("monitor_stop")
	var tick <-chan time.Time
	if m.pace > 0 {
		t := time.NewTicker(m.pace)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		m.Step()
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
			continue
		}
		runtime.Gosched()
	}
}

// PendingFlags returns the flags seen but not yet reported.
func (m *Monitor) PendingFlags() lin.ErrorFlags { return m.pending }

func (m *Monitor) checkIdle() {
	if m.idle.ElapsedMillis() <= IdleTimeout.Milliseconds() {
		return
	}
	m.statusLED.Pulse()
	m.out.Print(WaitingMessage)
	m.out.Println()
	m.idle.Restart()
	metrics.IncIdleReport()
}

func (m *Monitor) checkErrors() {
	if flags := m.src.GetAndClearErrorFlags(); flags != 0 {
		m.errLED.Pulse()
		m.idle.Restart()
		m.pending |= flags
		flags.ForEach(func(_ lin.ErrorFlags, label string) { metrics.IncErrorFlag(label) })
	}
	if m.pending == 0 || m.flush.ElapsedMillis() <= ErrorReportInterval.Milliseconds() {
		return
	}
	m.src.PrintErrorFlags(m.out, m.pending)
	m.flush.Restart()
	m.pending = 0
	metrics.IncErrorReport()
}

func (m *Monitor) handleFrame(f *lin.Frame) {
	valid := f.Valid(m.mode)
	if valid {
		m.frameLED.Pulse()
	} else {
		m.errLED.Pulse()
	}
	for i, b := range f.Bytes() {
		if i > 0 {
			m.out.PrintChar(' ')
		}
		m.out.PrintHex2(b)
	}
	if !valid {
		m.out.Print(" ERR")
	}
	m.out.Println()
	m.idle.Restart()
	metrics.IncFrame(valid)
	if !valid {
		return
	}
	if m.export != nil {
		m.export(*f)
	}
	m.applyRules(f)
}

func (m *Monitor) applyRules(f *lin.Frame) {
	for i := range m.states {
		st := &m.states[i]
		on, ok := st.rule.Match(f)
		if !ok {
			continue
		}
		st.act.SetState(on)
		if st.known && st.on == on {
			continue
		}
		st.on, st.known = on, true
		metrics.SetSignal(st.rule.Name, on)
		if m.onSignal != nil {
			m.onSignal(Transition{Rule: st.rule.Name, State: on, ID: f.PID(), At: m.clock.Now()})
		}
	}
}
