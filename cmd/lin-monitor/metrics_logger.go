package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_valid", snap.ValidFrames,
					"frames_invalid", snap.InvalidFrames,
					"error_flags", snap.ErrorFlags,
					"idle_reports", snap.IdleReports,
					"serial_rx", snap.SerialRxBytes,
					"diag_dropped", snap.DiagDropped,
					"tcp_tx", snap.TCPTx,
					"hub_drops", snap.HubDrops,
					"events", snap.Events,
					"loop_rate", snap.LoopRate,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
