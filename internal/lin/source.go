package lin

import "sync/atomic"

// DefaultMailboxDepth is the number of decoded frames a Source buffers
// between the receive goroutine and the monitor loop.
const DefaultMailboxDepth = 16

// Source hands decoded frames and error flags from a receive goroutine to
// the monitor loop. Frames travel through a bounded mailbox; error flags
// accumulate in an atomic bitmask until read-and-cleared.
type Source struct {
	frames  chan Frame
	flags   atomic.Uint32
	mode    ChecksumMode
	bitrate int
}

// NewSource creates a source with the given mailbox depth (DefaultMailboxDepth
// when <= 0), checksum mode and bus bit-rate.
func NewSource(depth int, mode ChecksumMode, bitrate int) *Source {
	if depth <= 0 {
		depth = DefaultMailboxDepth
	}
	return &Source{frames: make(chan Frame, depth), mode: mode, bitrate: bitrate}
}

// Mode returns the configured checksum mode.
func (s *Source) Mode() ChecksumMode { return s.mode }

// Bitrate returns the configured bus bit-rate.
func (s *Source) Bitrate() int { return s.bitrate }

// Deliver queues a frame for the loop. A full mailbox drops the frame and
// raises FlagOverrun.
func (s *Source) Deliver(f Frame) {
	select {
	case s.frames <- f:
	default:
		s.Raise(FlagOverrun)
	}
}

// Raise ORs flags into the pending accumulator.
func (s *Source) Raise(f ErrorFlags) {
	if f != 0 {
		s.flags.Or(uint32(f))
	}
}

// ReadNextFrame pops one frame without blocking.
func (s *Source) ReadNextFrame() (Frame, bool) {
	select {
	case f := <-s.frames:
		return f, true
	default:
		return Frame{}, false
	}
}

// GetAndClearErrorFlags returns the flags raised since the previous call.
func (s *Source) GetAndClearErrorFlags() ErrorFlags { return ErrorFlags(s.flags.Swap(0)) }

// PrintErrorFlags formats flags with the fixed label scheme.
func (s *Source) PrintErrorFlags(w TextSink, f ErrorFlags) { PrintErrorFlags(w, f) }

// NewDecoder returns a decoder feeding this source.
func (s *Source) NewDecoder(framing Framing) *Decoder {
	return NewDecoder(framing, s.Deliver, s.Raise)
}
