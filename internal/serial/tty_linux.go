//go:build linux

package serial

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// OpenMarked opens name in raw mode with parity/framing marking enabled
// (PARMRK + INPCK). The kernel then reports a break as FF 00 00, a byte X
// received with a framing error as FF 00 X and a literal 0xFF as FF FF,
// so breaks can be told apart from data bytes.
func OpenMarked(name string, baud int, readTimeout time.Duration) (Port, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("tty: unsupported baud %d (10400 needs a custom divisor; use a standard rate)", baud)
	}
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tty %s: get termios: %w", name, err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.IGNPAR | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Iflag |= unix.PARMRK | unix.INPCK
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime(readTimeout)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tty %s: set termios: %w", name, err)
	}
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
	return os.NewFile(uintptr(fd), name), nil
}

// vtime converts a read timeout to termios deciseconds (1..255).
func vtime(d time.Duration) uint8 {
	ds := d / (100 * time.Millisecond)
	switch {
	case ds < 1:
		return 1
	case ds > 255:
		return 255
	default:
		return uint8(ds)
	}
}
