package indicator

import (
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/timer"
)

const (
	DefaultLEDOnTime  = 50 * time.Millisecond
	DefaultLEDOffTime = 50 * time.Millisecond
)

type ledPhase uint8

const (
	ledIdle ledPhase = iota
	ledOn
	ledOff
)

// LED turns pulse requests into visible blinks: on for OnTime, then off for
// at least OffTime. Requests arriving during a blink coalesce into a single
// follow-up blink. An LED belongs to the goroutine that calls Pulse and
// Service.
type LED struct {
	OnTime  time.Duration
	OffTime time.Duration

	out     output
	t       *timer.Timer
	phase   ledPhase
	pending bool
	blinks  uint64
}

// NewLED returns an idle LED driving pin. A nil pin selects NopPin and a
// nil clock the system clock.
func NewLED(name string, pin Pin, c timer.Clock) *LED {
	if pin == nil {
		pin = NopPin{}
	}
	l := &LED{
		OnTime:  DefaultLEDOnTime,
		OffTime: DefaultLEDOffTime,
		out:     output{name: name, pin: pin},
		t:       timer.New(c),
	}
	l.out.set(false)
	return l
}

// Name returns the output name used in logs and metrics.
func (l *LED) Name() string { return l.out.name }

// Pulse requests one blink. It takes effect on the next Service call.
func (l *LED) Pulse() { l.pending = true }

// Service advances the blink timing.
func (l *LED) Service() {
	switch l.phase {
	case ledOn:
		if l.t.Elapsed() < l.OnTime {
			return
		}
		l.out.set(false)
		l.phase = ledOff
		l.t.Restart()
		return
	case ledOff:
		if l.t.Elapsed() < l.OffTime {
			return
		}
		l.phase = ledIdle
	}
	if l.pending {
		l.pending = false
		l.blinks++
		l.out.set(true)
		l.phase = ledOn
		l.t.Restart()
	}
}

// Lit reports whether the LED is currently on.
func (l *LED) Lit() bool { return l.out.on }

// Blinks returns the number of blinks started so far.
func (l *LED) Blinks() uint64 { return l.blinks }
