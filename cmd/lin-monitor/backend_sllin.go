package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/socketcan"
)

// openSLLINDevice is a hook for tests.
var openSLLINDevice = func(iface string, timeout time.Duration) (socketcan.Dev, error) {
	d, err := socketcan.Open(iface, timeout)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// initSLLINBackend reads frames the sllin line discipline has already
// assembled and rebuilds them as LIN frames.
func initSLLINBackend(ctx context.Context, cfg *appConfig, src *lin.Source, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	dev, err := openSLLINDevice(cfg.sllinIf, cfg.serialReadTO)
	if err != nil {
		return func() {}, fmt.Errorf("sllin open %s: %w", cfg.sllinIf, err)
	}
	l.Info("sllin_open", "if", cfg.sllinIf, "checksum", src.Mode().String())
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("lin_rx_end", "backend", "sllin")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var raw socketcan.Raw
			if err := dev.ReadFrame(&raw); err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				if errors.Is(err, socketcan.ErrTimeout) {
					continue
				}
				src.Raise(lin.FlagRead)
				metrics.IncError(metrics.ErrSLLINRead)
				l.Warn("sllin_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			backoff = rxBackoffMin
			f, flags, ok := socketcan.ToLIN(&raw, src.Mode())
			src.Raise(flags)
			if ok {
				src.Deliver(f)
			}
		}
	}()
	return func() { _ = dev.Close() }, nil
}
