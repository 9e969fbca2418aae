package diag

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func waitOutput(t *testing.T, w *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if w.String() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("output=%q want %q", w.String(), want)
}

func TestSinkFormatsAndFlushes(t *testing.T) {
	var out syncBuffer
	s := NewSink(context.Background(), &out, 64, 2)
	defer s.Close()

	s.PrintHex2(0x39)
	s.PrintChar(' ')
	s.PrintHex2(0x0a)
	s.Print(" ERR")
	s.Println()
	if out.String() != "" {
		t.Fatalf("text written before Service: %q", out.String())
	}
	s.Service()
	waitOutput(t, &out, "39 0A ERR\r\n")
	if s.Buffered() != 0 {
		t.Fatalf("buffer not rotated, %d bytes left", s.Buffered())
	}
}

// blockingWriter holds every write until released.
type blockingWriter struct {
	release chan struct{}
	out     syncBuffer
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return w.out.Write(p)
}

func TestSinkKeepsAccumulatingWhileWriterBusy(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	s := NewSink(context.Background(), w, 16, 2)

	s.Print("first")
	s.Service() // handed to the writer, which blocks
	s.Print("second")
	s.Service() // no free buffer: must return immediately and keep the text
	if s.Buffered() != len("second") {
		t.Fatalf("buffered=%d want %d", s.Buffered(), len("second"))
	}
	close(w.release)
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && s.Buffered() != 0 {
		s.Service()
		time.Sleep(2 * time.Millisecond)
	}
	waitOutput(t, &w.out, "firstsecond")
	_ = s.Close()
}

// slowWriter takes a while for every write.
type slowWriter struct{ out syncBuffer }

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return w.out.Write(p)
}

func TestSinkCloseWritesQueuedBuffersAfterCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		w := &slowWriter{}
		s := NewSink(ctx, w, 8, 3)
		s.Print("A")
		s.Service()
		s.Print("B")
		s.Service()
		s.Print("C")
		cancel()
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if got := w.out.String(); got != "ABC" {
			t.Fatalf("run %d: output=%q want %q", i, got, "ABC")
		}
	}
}

func TestSinkDropsWhenFull(t *testing.T) {
	var out syncBuffer
	s := NewSink(context.Background(), &out, 8, 2)
	before := metrics.Snap().DiagDropped
	s.Print("12345678")
	s.Print("9")
	s.PrintChar('x')
	s.PrintHex2(0xFF)
	if got := metrics.Snap().DiagDropped - before; got != 4 {
		t.Fatalf("dropped=%d want 4", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if out.String() != "12345678" {
		t.Fatalf("output=%q", out.String())
	}
}

func BenchmarkSinkFrameLine(b *testing.B) {
	s := NewSink(context.Background(), discard{}, 0, 0)
	defer s.Close()
	frame := []byte{0x39, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC4}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for j, v := range frame {
			if j > 0 {
				s.PrintChar(' ')
			}
			s.PrintHex2(v)
		}
		s.Println()
		s.Service()
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
