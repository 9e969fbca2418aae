package indicator

import (
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/timer"
)

const (
	DefaultBeepOn  = 150 * time.Millisecond
	DefaultBeepOff = 150 * time.Millisecond
	DefaultHold    = time.Second
)

// Buzzer follows a level input. While engaged it beeps OnTime on and
// OffTime off (continuous tone when OffTime is zero). If SetState(true) is
// not repeated within Hold the buzzer disengages by itself; Hold zero keeps
// the last state forever.
type Buzzer struct {
	OnTime  time.Duration
	OffTime time.Duration
	Hold    time.Duration

	out     output
	cadence *timer.Timer
	held    *timer.Timer
	engaged bool
}

// NewBuzzer returns a silent buzzer driving pin.
func NewBuzzer(name string, pin Pin, c timer.Clock) *Buzzer {
	if pin == nil {
		pin = NopPin{}
	}
	b := &Buzzer{
		OnTime:  DefaultBeepOn,
		OffTime: DefaultBeepOff,
		Hold:    DefaultHold,
		out:     output{name: name, pin: pin},
		cadence: timer.New(c),
		held:    timer.New(c),
	}
	b.out.set(false)
	return b
}

// Name returns the output name used in logs and metrics.
func (b *Buzzer) Name() string { return b.out.name }

// SetState engages or releases the buzzer. Engaging an idle buzzer starts
// a fresh beep cycle on the next Service call.
func (b *Buzzer) SetState(on bool) {
	if on {
		if !b.engaged {
			b.cadence.Restart()
		}
		b.held.Restart()
	}
	b.engaged = on
}

// Engaged reports the current level input (after hold expiry).
func (b *Buzzer) Engaged() bool { return b.engaged }

// Sounding reports whether the output is currently driven on.
func (b *Buzzer) Sounding() bool { return b.out.on }

// Service applies hold expiry and the beep cadence.
func (b *Buzzer) Service() {
	if b.engaged && b.Hold > 0 && b.held.Elapsed() > b.Hold {
		b.engaged = false
	}
	if !b.engaged {
		b.out.set(false)
		return
	}
	if b.OffTime <= 0 || b.OnTime <= 0 {
		b.out.set(true)
		return
	}
	period := b.OnTime + b.OffTime
	pos := b.cadence.Elapsed() % period
	b.out.set(pos < b.OnTime)
}
