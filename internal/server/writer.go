package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

// clientWriter streams hub frames to one connection in batches.
type clientWriter struct {
	s     *Server
	conn  net.Conn
	batch []lin.Frame
}

// flush writes the pending batch under the write timeout.
func (w *clientWriter) flush() error {
	n := len(w.batch)
	if n == 0 {
		return nil
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.s.cfg.writeTimeout))
	_, err := w.s.Codec.EncodeTo(w.conn, w.batch)
	w.batch = w.batch[:0]
	if err != nil {
		return w.s.fail(fmt.Errorf("%w: %v", ErrConnWrite, err))
	}
	metrics.AddTCPTx(n)
	return nil
}

// add queues f and flushes once the batch is full.
func (w *clientWriter) add(f lin.Frame) error {
	w.batch = append(w.batch, f)
	if len(w.batch) < cap(w.batch) {
		return nil
	}
	return w.flush()
}

// startWriter flushes every flushInterval or when batchSize frames are
// queued. It owns the client's teardown.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w := &clientWriter{s: s, conn: conn, batch: make([]lin.Frame, 0, s.cfg.batchSize)}
		defer func() {
			if s.drop(cl) {
				s.stats.disconnected.Add(1)
				logger.Info("client_disconnected")
			}
		}()
		t := time.NewTicker(s.cfg.flushInterval)
		defer t.Stop()
		for {
			var err error
			select {
			case fr := <-cl.Out:
				err = w.add(fr)
			case <-t.C:
				err = w.flush()
			case <-cl.Closed:
				_ = w.flush()
				return
			case <-ctxDone:
				_ = w.flush()
				return
			}
			if err != nil {
				logger.Debug("client_write_failed", "error", err)
				return
			}
		}
	}()
}
