// Package socketcan reads LIN traffic from a Linux sllin interface, which
// presents every LIN frame as a classic CAN frame on a raw CAN socket.
package socketcan

import (
	"errors"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>).
const (
	EFFFlag = 0x80000000
	RTRFlag = 0x40000000
	ErrFlag = 0x20000000
	SFFMask = 0x7FF
)

// ErrTimeout is returned by ReadFrame when no frame arrived within the
// receive timeout.
var ErrTimeout = errors.New("socketcan read timeout")

// Raw is one classic CAN frame as delivered by the kernel.
type Raw struct {
	ID   uint32 // includes EFF/RTR/ERR flags
	Len  uint8
	Data [8]byte
}

// Dev is the minimal interface needed by the sllin backend.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame(*Raw) error
	Close() error
}

// ToLIN rebuilds the LIN frame carried by r: identifier with parity bits,
// payload and a checksum computed under mode (sllin verifies and strips
// the checksum in the driver). Error frames raise FRAMING, remote frames
// (header without response) raise SHORT and identifiers outside the LIN
// range raise SYNC; ok is false in all three cases.
func ToLIN(r *Raw, mode lin.ChecksumMode) (f lin.Frame, flags lin.ErrorFlags, ok bool) {
	switch {
	case r.ID&ErrFlag != 0:
		return f, lin.FlagFraming, false
	case r.ID&RTRFlag != 0:
		return f, lin.FlagShort, false
	case r.ID&EFFFlag != 0, r.ID&SFFMask > 0x3F:
		return f, lin.FlagSync, false
	}
	n := int(r.Len)
	if n > lin.MaxPayload {
		return f, lin.FlagOverflow, false
	}
	return lin.NewFrame(byte(r.ID&0x3F), r.Data[:n], mode), 0, true
}
