// Package serial opens the UART carrying the LIN bus.
package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts the receive UART for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens name as a plain 8N1 port. A LIN break reads as a single 0x00
// byte. A read that times out returns no data.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
