// Package diag implements the buffered diagnostic text output of the monitor.
package diag

import (
	"context"
	"io"

	"github.com/kstaniek/go-lin-monitor/internal/logging"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/transport"
)

const (
	// DefaultBufferSize is the capacity of each text buffer.
	DefaultBufferSize = 4096
	// DefaultBuffers is the number of buffers in rotation.
	DefaultBuffers = 2
	// LineEnd terminates every diagnostic line.
	LineEnd = "\r\n"
)

const hexDigits = "0123456789ABCDEF"

// Sink collects diagnostic text in a fixed-size buffer. Print calls never
// block and never allocate; Service hands the filled buffer to a writer
// goroutine and continues with a free one. Text that does not fit is
// dropped and counted. A Sink belongs to the goroutine running the loop.
type Sink struct {
	buf  []byte
	free chan []byte
	tx   *transport.AsyncTx[[]byte]
	w    io.Writer
}

// NewSink returns a sink draining into w. size and buffers fall back to the
// defaults when not positive; at least two buffers are used.
func NewSink(ctx context.Context, w io.Writer, size, buffers int) *Sink {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if buffers < 2 {
		buffers = DefaultBuffers
	}
	s := &Sink{
		buf:  make([]byte, 0, size),
		free: make(chan []byte, buffers),
		w:    w,
	}
	for i := 1; i < buffers; i++ {
		s.free <- make([]byte, 0, size)
	}
	send := func(b []byte) error {
		n, err := w.Write(b)
		metrics.AddDiagWritten(n)
		s.free <- b[:0]
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrDiagWrite)
			logging.L().Warn("diag_write_error", "error", err)
		},
	}
	s.tx = transport.NewAsyncTx(ctx, buffers, send, hooks)
	return s
}

// Print appends text. The whole text is dropped if it does not fit.
func (s *Sink) Print(text string) {
	if len(s.buf)+len(text) > cap(s.buf) {
		s.drop(len(text))
		return
	}
	s.buf = append(s.buf, text...)
}

// Println terminates the current line.
func (s *Sink) Println() { s.Print(LineEnd) }

// PrintChar appends a single byte.
func (s *Sink) PrintChar(c byte) {
	if len(s.buf) >= cap(s.buf) {
		s.drop(1)
		return
	}
	s.buf = append(s.buf, c)
}

// PrintHex2 appends b as exactly two uppercase hexadecimal digits.
func (s *Sink) PrintHex2(b byte) {
	if len(s.buf)+2 > cap(s.buf) {
		s.drop(2)
		return
	}
	s.buf = append(s.buf, hexDigits[b>>4], hexDigits[b&0x0F])
}

// Buffered returns the number of bytes waiting for the next Service call.
func (s *Sink) Buffered() int { return len(s.buf) }

// Service hands buffered text to the writer when a free buffer is
// available. It never waits for the writer.
func (s *Sink) Service() {
	if len(s.buf) == 0 {
		return
	}
	var next []byte
	select {
	case next = <-s.free:
	default:
		return // writer still busy; keep accumulating
	}
	if err := s.tx.Send(s.buf); err != nil {
		s.free <- next
		return
	}
	s.buf = next
}

// Close waits for every buffer already handed to the writer, then writes
// whatever is still buffered directly. The sink must not be used afterwards.
func (s *Sink) Close() error {
	s.tx.Drain()
	if len(s.buf) == 0 {
		return nil
	}
	n, err := s.w.Write(s.buf)
	metrics.AddDiagWritten(n)
	s.buf = s.buf[:0]
	return err
}

func (s *Sink) drop(n int) {
	metrics.AddDiagDropped(n)
	metrics.IncError(metrics.ErrDiagOverflow)
}
