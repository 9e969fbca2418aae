package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
)

// initBackend opens the configured receive backend and starts its RX loop
// feeding src. The returned cleanup closes the device.
func initBackend(ctx context.Context, cfg *appConfig, src *lin.Source, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, src, l, wg)
	case "tty":
		return initTTYBackend(ctx, cfg, src, l, wg)
	case "sllin":
		return initSLLINBackend(ctx, cfg, src, l, wg)
	default:
		return func() {}, fmt.Errorf("unknown backend %q (use serial|tty|sllin)", cfg.backend)
	}
}
