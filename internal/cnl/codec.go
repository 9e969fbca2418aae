package cnl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
)

// Codec maps LIN frames onto cannelloni CAN frames: the CAN identifier
// carries the 6-bit LIN identifier and the payload carries the LIN data
// bytes. Parity and checksum are not transmitted; Decode rebuilds them
// under Mode. Safe for concurrent use.
type Codec struct {
	Mode lin.ChecksumMode
}

// ErrInvalidLength is returned when a frame length is outside 0..8.
var ErrInvalidLength = errors.New("cannelloni: invalid length")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("cannelloni: truncated frame")

// ErrInvalidID is returned for identifiers that do not fit a LIN frame.
var ErrInvalidID = errors.New("cannelloni: identifier outside LIN range")

const frameHeader = 4 + 1

// Encode packs frames into a single cannelloni packet.
func (c *Codec) Encode(frames []lin.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.Grow(len(frames) * (frameHeader + lin.MaxPayload))
	_, _ = c.EncodeTo(&buf, frames)
	return buf.Bytes()
}

// EncodeTo writes the wire representation of frames to w and returns bytes
// written. Each frame is a 4-byte BE identifier, a length byte and the
// payload. Frames too short to carry identifier and checksum are skipped.
func (c *Codec) EncodeTo(w io.Writer, frames []lin.Frame) (int, error) {
	var total int
	var rec [frameHeader + lin.MaxPayload]byte
	for i := range frames {
		f := &frames[i]
		ln, ok := f.PayloadLen()
		if !ok || ln > lin.MaxPayload {
			continue
		}
		binary.BigEndian.PutUint32(rec[:4], uint32(f.ID()))
		rec[4] = byte(ln)
		copy(rec[frameHeader:], f.Payload())
		n, err := w.Write(rec[:frameHeader+ln])
		total += n
		if err != nil {
			return total, fmt.Errorf("cannelloni encode: %w", err)
		}
	}
	return total, nil
}

// Decode reads exactly one frame from r.
// It returns io.EOF if called at a clean frame boundary and no more data is available.
func (c *Codec) Decode(r io.Reader) (lin.Frame, error) {
	var hdr [frameHeader]byte
	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return lin.Frame{}, err
	}
	if _, err := io.ReadFull(r, hdr[4:]); err != nil {
		return lin.Frame{}, fmt.Errorf("cannelloni decode len: %w", ErrTruncatedFrame)
	}
	id := binary.BigEndian.Uint32(hdr[:4])
	ln := int(hdr[4]) // CAN FD frames (high bit set) never carry LIN data
	if ln > lin.MaxPayload {
		return lin.Frame{}, fmt.Errorf("cannelloni decode: %w (%d)", ErrInvalidLength, ln)
	}
	var payload [lin.MaxPayload]byte
	if ln > 0 {
		if _, err := io.ReadFull(r, payload[:ln]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return lin.Frame{}, fmt.Errorf("cannelloni decode payload: %w", ErrTruncatedFrame)
			}
			return lin.Frame{}, fmt.Errorf("cannelloni decode payload: %w", err)
		}
	}
	if id > 0x3F {
		return lin.Frame{}, fmt.Errorf("%w: 0x%X", ErrInvalidID, id)
	}
	return lin.NewFrame(byte(id), payload[:ln], c.Mode), nil
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0) invoking onFrame for each.
// It returns the number of frames decoded and the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(lin.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}
