// Package indicator drives the monitor's LEDs and buzzer.
package indicator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kstaniek/go-lin-monitor/internal/logging"
)

// Pin is a single digital output.
type Pin interface {
	Set(on bool) error
}

// NopPin discards every state change.
type NopPin struct{}

func (NopPin) Set(bool) error { return nil }

// LogPin reports state changes at debug level.
type LogPin struct{ Name string }

func (p LogPin) Set(on bool) error {
	logging.L().Debug("output_set", "output", p.Name, "on", on)
	return nil
}

// SysfsPin writes "1" or "0" to a sysfs attribute such as
// /sys/class/leds/<led>/brightness or /sys/class/gpio/gpioN/value. The
// attribute is opened on the first Set and kept open until Close.
type SysfsPin struct {
	Path string
	f    *os.File
}

var (
	pinOn  = []byte("1")
	pinOff = []byte("0")
)

func (p *SysfsPin) Set(on bool) error {
	if p.f == nil {
		f, err := os.OpenFile(p.Path, os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		p.f = f
	}
	v := pinOff
	if on {
		v = pinOn
	}
	_, err := p.f.WriteAt(v, 0)
	return err
}

// Close releases the attribute file.
func (p *SysfsPin) Close() error {
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}

// ErrPinSpec reports an unrecognized output specification.
var ErrPinSpec = errors.New("invalid output spec")

// ParsePin turns an output spec into a Pin:
//
//	"" | none       NopPin
//	log             LogPin named name
//	sysfs:<path>    SysfsPin
func ParsePin(spec, name string) (Pin, error) {
	s := strings.TrimSpace(spec)
	switch {
	case s == "" || strings.EqualFold(s, "none"):
		return NopPin{}, nil
	case strings.EqualFold(s, "log"):
		return LogPin{Name: name}, nil
	case strings.HasPrefix(s, "sysfs:"):
		path := strings.TrimPrefix(s, "sysfs:")
		if path == "" {
			return nil, fmt.Errorf("%w: %q (missing path)", ErrPinSpec, spec)
		}
		return &SysfsPin{Path: path}, nil
	default:
		return nil, fmt.Errorf("%w: %q (use none|log|sysfs:<path>)", ErrPinSpec, spec)
	}
}
