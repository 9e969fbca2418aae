package main

import (
	"io"

	"github.com/kstaniek/go-lin-monitor/internal/indicator"
	"github.com/kstaniek/go-lin-monitor/internal/timer"
)

// Output names as they appear in logs and the output_state gauge.
const (
	outErrLED    = "led_error"
	outFrameLED  = "led_frames"
	outStatusLED = "led_status"
	outBuzzer    = "buzzer"
)

type outputs struct {
	errLED    *indicator.LED
	frameLED  *indicator.LED
	statusLED *indicator.LED
	buzzer    *indicator.Buzzer
	pins      []io.Closer
}

// initOutputs builds the three LEDs and the buzzer from their pin specs.
func initOutputs(cfg *appConfig, c timer.Clock) (*outputs, error) {
	o := &outputs{}
	pin := func(spec, name string) (indicator.Pin, error) {
		p, err := indicator.ParsePin(spec, name)
		if err != nil {
			return nil, err
		}
		if cl, ok := p.(io.Closer); ok {
			o.pins = append(o.pins, cl)
		}
		return p, nil
	}
	led := func(spec, name string) (*indicator.LED, error) {
		p, err := pin(spec, name)
		if err != nil {
			return nil, err
		}
		return indicator.NewLED(name, p, c), nil
	}
	var err error
	if o.errLED, err = led(cfg.ledErr, outErrLED); err != nil {
		return nil, err
	}
	if o.frameLED, err = led(cfg.ledFrames, outFrameLED); err != nil {
		return nil, err
	}
	if o.statusLED, err = led(cfg.ledStatus, outStatusLED); err != nil {
		return nil, err
	}
	bp, err := pin(cfg.buzzerPin, outBuzzer)
	if err != nil {
		return nil, err
	}
	o.buzzer = indicator.NewBuzzer(outBuzzer, bp, c)
	o.buzzer.OnTime = cfg.buzzerOn
	o.buzzer.OffTime = cfg.buzzerOff
	o.buzzer.Hold = cfg.buzzerHold
	return o, nil
}

// release silences every output on shutdown and closes the pin files.
func (o *outputs) release() {
	o.buzzer.SetState(false)
	o.buzzer.Service()
	for _, p := range o.pins {
		_ = p.Close()
	}
}
