//go:build !linux

package socketcan

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by Open on platforms without SocketCAN.
var ErrUnsupported = errors.New("socketcan: only supported on linux")

type Device struct{}

func Open(string, time.Duration) (*Device, error) { return nil, ErrUnsupported }

func (d *Device) Close() error { return nil }

func (d *Device) ReadFrame(*Raw) error { return ErrUnsupported }
