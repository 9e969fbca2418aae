package hub

import (
	"context"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/transport"
)

// DefaultFeedSize is the frame queue length used when NewFeed gets n <= 0.
const DefaultFeedSize = 256

// Feed hands frames to Broadcast on its own goroutine, so the sender never
// waits while clients are being added or removed.
type Feed struct {
	tx *transport.AsyncTx[lin.Frame]
}

// NewFeed starts the broadcast worker for h. A full queue counts as a hub drop.
func NewFeed(ctx context.Context, h *Hub, n int) *Feed {
	if n <= 0 {
		n = DefaultFeedSize
	}
	return &Feed{tx: transport.NewAsyncTx(ctx, n, func(fr lin.Frame) error {
		h.Broadcast(fr)
		return nil
	}, transport.Hooks{
		OnDrop: func() error {
			metrics.IncHubDrop()
			return nil
		},
	})}
}

// Send queues fr for every client. It never blocks.
func (f *Feed) Send(fr lin.Frame) { _ = f.tx.Send(fr) }

// Close stops the worker; queued frames are discarded.
func (f *Feed) Close() { f.tx.Close() }
