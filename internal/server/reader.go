package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/transport"
)

const readBurst = 16

// startReader drains whatever the client sends. The monitor never
// transmits on the bus, so decoded frames are counted and discarded. A
// malformed stream or a closed socket ends the client.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cl.Close()
		ignore := func(fr lin.Frame) {
			s.stats.ignoredRx.Add(1)
			metrics.IncTCPRxIgnored()
			logger.Debug("export_rx_ignored", "id", fmt.Sprintf("0x%02X", fr.ID()), "len", fr.Len)
		}
		decode := func() (int, error) {
			if mfd, ok := s.Codec.(transport.MultiFrameDecoder); ok {
				return mfd.DecodeN(conn, readBurst, ignore)
			}
			fr, err := s.Codec.Decode(conn)
			if err != nil {
				return 0, err
			}
			ignore(fr)
			return 1, nil
		}
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.readDeadline))
			count, err := decode()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					continue
				}
				logger.Warn("client_read_failed", "error", s.fail(fmt.Errorf("%w: %v", ErrConnRead, err)))
				return
			}
			if count == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			select {
			case <-ctxDone:
				return
			case <-cl.Closed:
				return
			default:
			}
		}
	}()
}
