package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/kstaniek/go-lin-monitor/internal/cnl"
	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

// admit runs the cannelloni hello exchange and registers the client unless
// the server is full. A refused connection is closed.
func (s *Server) admit(ctx context.Context, conn net.Conn, log *slog.Logger) (*hub.Client, bool) {
	if err := cnl.Handshake(ctx, conn, s.cfg.handshakeTimeout); err != nil {
		s.stats.handshakeFailed.Add(1)
		log.Warn("handshake_failed", "error", s.fail(fmt.Errorf("%w: %v", ErrHandshake, err)))
		_ = conn.Close()
		return nil, false
	}
	size := defaultClientBuffer
	if s.Hub != nil && s.Hub.OutBufSize > 0 {
		size = s.Hub.OutBufSize
	}
	cl := hub.NewClient(size)

	s.clientsMu.Lock()
	full := s.cfg.maxClients > 0 && len(s.clients) >= s.cfg.maxClients
	if !full {
		s.clients[cl] = conn
	}
	s.clientsMu.Unlock()
	if full {
		s.stats.rejected.Add(1)
		metrics.IncHubReject()
		log.Warn("client_reject_max", "max_clients", s.cfg.maxClients)
		_ = conn.Close()
		return nil, false
	}
	if s.Hub != nil {
		s.Hub.Add(cl)
	}
	return cl, true
}
