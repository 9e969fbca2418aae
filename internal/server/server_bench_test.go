package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/cnl"
	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
)

// startInMemoryServer launches the server on :0 for benchmarks.
func startInMemoryServer(b *testing.B, h *hub.Hub) (*Server, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(WithHub(h), WithCodec(&cnl.Codec{}))
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		b.Fatalf("server not ready")
	}
	return srv, cancel
}

func BenchmarkServerBroadcast(b *testing.B) {
	h := hub.New()
	h.OutBufSize = 1024
	srv, cancel := startInMemoryServer(b, h)
	defer cancel()
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		b.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write([]byte("CANNELLONIv1")); err != nil {
		b.Fatalf("handshake write: %v", err)
	}
	buf := make([]byte, len("CANNELLONIv1"))
	if _, err := conn.Read(buf); err != nil {
		b.Fatalf("handshake read: %v", err)
	}
	_ = conn.SetDeadline(time.Time{})
	go func() {
		sink := make([]byte, 4096)
		for {
			if _, err := conn.Read(sink); err != nil {
				return
			}
		}
	}()
	f := lin.NewFrame(0x39, []byte{2, 0, 0, 0, 0, 0}, lin.ChecksumClassic)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Broadcast(f)
	}
}
