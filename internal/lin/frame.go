package lin

import (
	"fmt"
	"strings"
)

// MaxFrameLen is the largest frame the monitor keeps: PID + 8 data bytes + checksum.
const MaxFrameLen = 10

// MaxPayload is the largest LIN data field.
const MaxPayload = 8

// Sync is the byte following every break in a LIN header.
const Sync = 0x55

// ChecksumMode selects the LIN checksum model.
type ChecksumMode uint8

const (
	// ChecksumClassic covers the data bytes only (LIN 1.x).
	ChecksumClassic ChecksumMode = iota
	// ChecksumEnhanced also covers the protected identifier (LIN 2.x).
	ChecksumEnhanced
)

func (m ChecksumMode) String() string {
	switch m {
	case ChecksumClassic:
		return "classic"
	case ChecksumEnhanced:
		return "enhanced"
	default:
		return fmt.Sprintf("ChecksumMode(%d)", uint8(m))
	}
}

// ParseChecksumMode accepts classic|legacy|1 and enhanced|v2|2.
func ParseChecksumMode(s string) (ChecksumMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classic", "legacy", "1", "1.3":
		return ChecksumClassic, nil
	case "enhanced", "v2", "2", "2.0", "2.1":
		return ChecksumEnhanced, nil
	default:
		return ChecksumClassic, fmt.Errorf("invalid checksum mode %q (use classic|enhanced)", s)
	}
}

// Frame is one received bus message: protected identifier, data bytes and
// the trailing checksum byte, exactly as seen on the wire. Only the first
// Len bytes of Data are meaningful.
type Frame struct {
	Len  uint8
	Data [MaxFrameLen]byte
}

// NewFrame builds a well-formed frame for the 6-bit id with a checksum
// computed under mode. Payload beyond MaxPayload bytes is truncated.
func NewFrame(id byte, payload []byte, mode ChecksumMode) Frame {
	var f Frame
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	pid := ProtectedID(id)
	f.Data[0] = pid
	n := copy(f.Data[1:], payload)
	f.Data[1+n] = Checksum(mode, pid, payload)
	f.Len = uint8(n + 2)
	return f
}

// Bytes returns the received bytes.
func (f *Frame) Bytes() []byte { return f.Data[:f.Len] }

// PID returns the identifier byte as received (zero for an empty frame).
func (f *Frame) PID() byte {
	if f.Len == 0 {
		return 0
	}
	return f.Data[0]
}

// ID returns the 6-bit frame identifier without parity bits.
func (f *Frame) ID() byte { return f.PID() & 0x3F }

// PayloadLen returns Len-2 (identifier and checksum excluded). ok is false
// when the frame is too short to carry both.
func (f *Frame) PayloadLen() (n int, ok bool) {
	if f.Len < 2 {
		return 0, false
	}
	return int(f.Len) - 2, true
}

// Payload returns the data bytes between identifier and checksum.
func (f *Frame) Payload() []byte {
	n, ok := f.PayloadLen()
	if !ok {
		return nil
	}
	return f.Data[1 : 1+n]
}

// Valid reports whether the trailing checksum byte matches the frame
// contents under mode.
func (f *Frame) Valid(mode ChecksumMode) bool {
	if f.Len < 2 || int(f.Len) > MaxFrameLen {
		return false
	}
	return Checksum(mode, f.Data[0], f.Payload()) == f.Data[f.Len-1]
}

// String renders the frame as space separated hex, e.g. "39 02 C4".
func (f Frame) String() string {
	var sb strings.Builder
	for i, b := range f.Bytes() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// Checksum computes the inverted 8-bit sum with end-around carry. In
// enhanced mode the protected identifier is included, except for the
// diagnostic frames 0x3C/0x3D which always use the classic checksum.
func Checksum(mode ChecksumMode, pid byte, data []byte) byte {
	var sum uint16
	if mode == ChecksumEnhanced {
		if id := pid & 0x3F; id != 0x3C && id != 0x3D {
			sum = uint16(pid)
		}
	}
	for _, b := range data {
		sum += uint16(b)
		if sum > 0xFF {
			sum -= 0xFF
		}
	}
	return ^byte(sum)
}

// ProtectedID adds the two parity bits to a 6-bit identifier:
// P0 = ID0^ID1^ID2^ID4, P1 = !(ID1^ID3^ID4^ID5).
func ProtectedID(id byte) byte {
	id &= 0x3F
	bit := func(n uint) byte { return (id >> n) & 1 }
	p0 := bit(0) ^ bit(1) ^ bit(2) ^ bit(4)
	p1 := ^(bit(1) ^ bit(3) ^ bit(4) ^ bit(5)) & 1
	return id | p0<<6 | p1<<7
}

// ParityOK reports whether pid carries the parity bits of its identifier.
func ParityOK(pid byte) bool { return ProtectedID(pid&0x3F) == pid }
