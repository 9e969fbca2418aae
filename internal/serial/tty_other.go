//go:build !linux

package serial

import (
	"errors"
	"time"
)

// ErrMarkedUnsupported is returned by OpenMarked outside Linux.
var ErrMarkedUnsupported = errors.New("tty: break marking requires linux termios")

func OpenMarked(string, int, time.Duration) (Port, error) { return nil, ErrMarkedUnsupported }
