package hub

import (
	"context"
	"testing"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

func frame(id byte) lin.Frame { return lin.NewFrame(id, []byte{1, 2}, lin.ChecksumClassic) }

func TestHub_Broadcast_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := NewClient(4)
	h.Add(cl)
	defer h.Remove(cl)

	pre := metrics.Snap()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Broadcast(frame(0x10))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Broadcast took too long: %s", elapsed)
	}
	if len(cl.Out) != cap(cl.Out) {
		t.Fatalf("expected client buffer to be full, got len=%d cap=%d", len(cl.Out), cap(cl.Out))
	}
	if d := metrics.Snap().HubDrops - pre.HubDrops; d != 996 {
		t.Fatalf("drops=%d want 996", d)
	}
}

func TestHub_Broadcast_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := NewClient(1)
	fast := NewClient(16)
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	for i := 0; i < 10; i++ {
		h.Broadcast(frame(byte(i)))
	}
	if len(fast.Out) != 10 {
		t.Fatalf("fast client got %d frames, want 10", len(fast.Out))
	}
	if first := <-fast.Out; first.ID() != 0 {
		t.Fatalf("frames out of order: first id %d", first.ID())
	}
}

func TestHub_KickClosesSlowClient(t *testing.T) {
	h := New()
	h.Policy = PolicyKick
	cl := NewClient(1)
	h.Add(cl)
	defer h.Remove(cl)
	h.Broadcast(frame(1))
	h.Broadcast(frame(2))
	select {
	case <-cl.Closed:
	default:
		t.Fatal("slow client not closed under kick policy")
	}
}

func TestHub_RemoveIdempotent(t *testing.T) {
	h := New()
	cl := NewClient(1)
	h.Add(cl)
	h.Remove(cl)
	h.Remove(cl)
	if h.Count() != 0 {
		t.Fatalf("count=%d", h.Count())
	}
	if metrics.Snap().HubClients != 0 {
		t.Fatalf("hub clients gauge=%d", metrics.Snap().HubClients)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, ok := ParsePolicy("kick"); !ok || p != PolicyKick {
		t.Fatal("kick")
	}
	if p, ok := ParsePolicy("drop"); !ok || p != PolicyDrop {
		t.Fatal("drop")
	}
	if _, ok := ParsePolicy("block"); ok {
		t.Fatal("block accepted")
	}
}

func TestFeedDeliversInOrder(t *testing.T) {
	h := New()
	cl := NewClient(8)
	h.Add(cl)
	defer h.Remove(cl)
	f := NewFeed(context.Background(), h, 4)
	defer f.Close()

	for i := 0; i < 3; i++ {
		f.Send(frame(byte(i)))
	}
	for i := 0; i < 3; i++ {
		select {
		case fr := <-cl.Out:
			if fr.ID() != byte(i) {
				t.Fatalf("frame %d has id %d", i, fr.ID())
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %d not broadcast", i)
		}
	}
}

func TestFeedSendDoesNotWaitForHub(t *testing.T) {
	h := New()
	f := NewFeed(context.Background(), h, 2)
	defer f.Close()

	// Hold the client set so the worker stalls inside Broadcast.
	h.mu.Lock()
	pre := metrics.Snap()
	start := time.Now()
	for i := 0; i < 100; i++ {
		f.Send(frame(0x10))
	}
	elapsed := time.Since(start)
	h.mu.Unlock()
	if elapsed > time.Second {
		t.Fatalf("Send took too long: %s", elapsed)
	}
	if d := metrics.Snap().HubDrops - pre.HubDrops; d < 97 {
		t.Fatalf("drops=%d want at least 97", d)
	}
}
