package indicator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/timer"
)

type recPin struct {
	states []bool
	err    error
}

func (p *recPin) Set(on bool) error {
	p.states = append(p.states, on)
	return p.err
}

func (p *recPin) last() bool { return len(p.states) > 0 && p.states[len(p.states)-1] }

func TestParsePin(t *testing.T) {
	cases := []struct {
		spec    string
		want    Pin
		wantErr bool
	}{
		{"", NopPin{}, false},
		{"none", NopPin{}, false},
		{"LOG", LogPin{Name: "frames"}, false},
		{"sysfs:", nil, true},
		{"gpio:17", nil, true},
	}
	for _, tc := range cases {
		got, err := ParsePin(tc.spec, "frames")
		if tc.wantErr {
			if !errors.Is(err, ErrPinSpec) {
				t.Errorf("%q: err=%v want ErrPinSpec", tc.spec, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got %#v, %v want %#v", tc.spec, got, err, tc.want)
		}
	}
	got, err := ParsePin("sysfs:/sys/class/leds/led0/brightness", "frames")
	if p, ok := got.(*SysfsPin); err != nil || !ok || p.Path != "/sys/class/leds/led0/brightness" {
		t.Errorf("sysfs: got %#v, %v", got, err)
	}
}

func TestSysfsPinWritesValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brightness")
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &SysfsPin{Path: path}
	defer p.Close()
	for _, tc := range []struct {
		on   bool
		want string
	}{{true, "1"}, {false, "0"}} {
		if err := p.Set(tc.on); err != nil {
			t.Fatalf("set: %v", err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tc.want {
			t.Fatalf("content=%q want %q", b, tc.want)
		}
	}
}

func TestSysfsPinKeepsFileOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &SysfsPin{Path: path}
	if err := p.Set(true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	// Later writes go to the already open file, not a fresh open of Path.
	if err := p.Set(false); err != nil {
		t.Fatalf("set after remove: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("path recreated: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Set(true); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("set after close: %v, want ErrNotExist", err)
	}
}

func TestSysfsPinMissingAttribute(t *testing.T) {
	p := &SysfsPin{Path: filepath.Join(t.TempDir(), "missing")}
	if err := p.Set(true); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v want ErrNotExist", err)
	}
}

func TestLEDBlinkTiming(t *testing.T) {
	clk := timer.NewManual(time.Time{})
	pin := &recPin{}
	l := NewLED("frames", pin, clk)

	l.Service()
	if l.Lit() {
		t.Fatal("lit without a pulse")
	}
	l.Pulse()
	l.Service()
	if !l.Lit() || l.Blinks() != 1 {
		t.Fatalf("lit=%v blinks=%d after pulse", l.Lit(), l.Blinks())
	}
	clk.Advance(49 * time.Millisecond)
	l.Service()
	if !l.Lit() {
		t.Fatal("switched off before OnTime")
	}
	clk.Advance(time.Millisecond)
	l.Service()
	if l.Lit() {
		t.Fatal("still lit after OnTime")
	}
}

func TestLEDPulsesCoalesce(t *testing.T) {
	clk := timer.NewManual(time.Time{})
	l := NewLED("errors", &recPin{}, clk)

	l.Pulse()
	l.Service()
	for i := 0; i < 5; i++ {
		l.Pulse()
		clk.Advance(10 * time.Millisecond)
		l.Service()
	}
	// 50ms on, then at least 50ms off before the follow-up blink.
	clk.Advance(10 * time.Millisecond)
	l.Service()
	if l.Lit() {
		t.Fatal("expected off phase")
	}
	clk.Advance(30 * time.Millisecond)
	l.Service()
	if l.Lit() {
		t.Fatal("follow-up blink started during off time")
	}
	clk.Advance(10 * time.Millisecond)
	l.Service()
	if !l.Lit() {
		t.Fatal("follow-up blink not started")
	}
	if l.Blinks() != 2 {
		t.Fatalf("blinks=%d want 2", l.Blinks())
	}
	clk.Advance(200 * time.Millisecond)
	l.Service()
	l.Service()
	if l.Lit() || l.Blinks() != 2 {
		t.Fatalf("lit=%v blinks=%d want idle after follow-up", l.Lit(), l.Blinks())
	}
}

func TestOutputSkipsRepeatedStates(t *testing.T) {
	pin := &recPin{}
	l := NewLED("status", pin, timer.NewManual(time.Time{}))
	for i := 0; i < 10; i++ {
		l.Service()
	}
	if len(pin.states) != 1 {
		t.Fatalf("pin writes=%d want 1 (initial off)", len(pin.states))
	}
}

func TestOutputErrorsCounted(t *testing.T) {
	before := metrics.Snap().Errors
	pin := &recPin{err: errors.New("gpio gone")}
	l := NewLED("status", pin, timer.NewManual(time.Time{}))
	l.Pulse()
	l.Service()
	if got := metrics.Snap().Errors - before; got != 2 {
		t.Fatalf("errors=%d want 2", got)
	}
}

func TestBuzzerCadence(t *testing.T) {
	clk := timer.NewManual(time.Time{})
	pin := &recPin{}
	b := NewBuzzer("buzzer", pin, clk)
	b.Hold = 0

	b.SetState(true)
	b.Service()
	if !b.Sounding() {
		t.Fatal("not sounding when engaged")
	}
	clk.Advance(150 * time.Millisecond)
	b.Service()
	if b.Sounding() {
		t.Fatal("still sounding in off half of cadence")
	}
	clk.Advance(150 * time.Millisecond)
	b.Service()
	if !b.Sounding() {
		t.Fatal("second beep missing")
	}
	b.SetState(false)
	b.Service()
	if b.Sounding() || pin.last() {
		t.Fatal("sounding after release")
	}
}

func TestBuzzerContinuous(t *testing.T) {
	clk := timer.NewManual(time.Time{})
	b := NewBuzzer("buzzer", &recPin{}, clk)
	b.OffTime = 0
	b.SetState(true)
	for i := 0; i < 10; i++ {
		b.SetState(true)
		b.Service()
		if !b.Sounding() {
			t.Fatalf("silent at step %d", i)
		}
		clk.Advance(100 * time.Millisecond)
	}
}

func TestBuzzerHoldExpires(t *testing.T) {
	clk := timer.NewManual(time.Time{})
	b := NewBuzzer("buzzer", &recPin{}, clk)
	b.OffTime = 0
	b.SetState(true)
	b.Service()
	clk.Advance(time.Second)
	b.Service()
	if !b.Engaged() {
		t.Fatal("disengaged at exactly Hold")
	}
	clk.Advance(time.Millisecond)
	b.Service()
	if b.Engaged() || b.Sounding() {
		t.Fatal("still engaged after Hold without re-assertion")
	}
}
