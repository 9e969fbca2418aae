package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/serial"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort and openMarkedPort are hooks for tests.
var (
	openSerialPort = serial.Open
	openMarkedPort = serial.OpenMarked
)

// initSerialBackend reads a plain UART where a break arrives as 0x00.
func initSerialBackend(ctx context.Context, cfg *appConfig, src *lin.Source, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return func() {}, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud, "framing", lin.FramingSync.String())
	startByteRX(ctx, "serial", sp, src.NewDecoder(lin.FramingSync), src, l, wg)
	return func() { _ = sp.Close() }, nil
}

// initTTYBackend reads a tty in PARMRK mode so breaks are marked in-band.
func initTTYBackend(ctx context.Context, cfg *appConfig, src *lin.Source, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	tp, err := openMarkedPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return func() {}, fmt.Errorf("open tty: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud, "framing", lin.FramingMarked.String())
	startByteRX(ctx, "tty", tp, src.NewDecoder(lin.FramingMarked), src, l, wg)
	return func() { _ = tp.Close() }, nil
}

// startByteRX runs the receive loop for byte-stream backends. A read that
// returns no data is the inter-frame gap and ends the frame in progress.
// Read errors raise FlagRead and back off exponentially.
func startByteRX(ctx context.Context, name string, p serial.Port, dec *lin.Decoder, src *lin.Source, l *slog.Logger, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("lin_rx_end", "backend", name)
		buf := make([]byte, serialReadBufSize)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := p.Read(buf)
			if n > 0 {
				metrics.AddSerialRx(n)
				dec.Feed(buf[:n])
				backoff = rxBackoffMin
			}
			if err == nil {
				if n == 0 {
					dec.Idle()
				}
				continue
			}
			if ctx.Err() != nil { // shutting down
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				dec.Idle()
				continue
			}
			src.Raise(lin.FlagRead)
			metrics.IncError(metrics.ErrPortRead)
			var perr *os.PathError
			if errors.As(err, &perr) {
				l.Error("lin_port_lost", "backend", name, "error", err)
				return // device removed
			}
			l.Warn("lin_read_error", "backend", name, "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}()
}
