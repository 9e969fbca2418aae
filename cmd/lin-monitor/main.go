package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/go-lin-monitor/internal/diag"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/monitor"
	"github.com/kstaniek/go-lin-monitor/internal/timer"
)

func main() { os.Exit(run()) }

func run() int {
	cfg, showVersion, err := parseFlags(flag.CommandLine, os.Args[1:])
	if showVersion {
		fmt.Printf("lin-monitor %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	mode, _ := lin.ParseChecksumMode(cfg.checksum)
	rules, err := monitor.LoadRules(cfg.rulesFile)
	if err != nil {
		l.Error("rules_load_error", "path", cfg.rulesFile, "error", err)
		return 1
	}
	for _, r := range rules {
		l.Info("rule", "name", r.Name, "id", fmt.Sprintf("0x%02X", r.ID), "payload_len", r.PayloadLen,
			"byte", r.Byte, "mask", fmt.Sprintf("0x%02X", r.Mask), "action", r.Action)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	out, closeConsole, err := diagWriter(cfg, l)
	if err != nil {
		l.Error("console_open_error", "device", cfg.console, "error", err)
		return 1
	}
	defer closeConsole()
	// The sink outlives ctx; Close drains it after the loop stops.
	sink := diag.NewSink(context.Background(), out, diag.DefaultBufferSize, diag.DefaultBuffers)

	outs, err := initOutputs(cfg, timer.System)
	if err != nil {
		l.Error("output_init_error", "error", err)
		return 1
	}

	onSignal, closeEvents, err := initEvents(ctx, cfg, l)
	if err != nil {
		l.Error("events_init_error", "error", err)
		return 1
	}
	defer closeEvents()

	export, srv := initExport(ctx, cancel, cfg, mode, l)
	defer shutdownExport(srv, l)

	src := lin.NewSource(cfg.mailbox, mode, cfg.baud)
	cleanupBackend, err := initBackend(ctx, cfg, src, l, &wg)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		return 1
	}

	opts := []monitor.Option{
		monitor.WithIndicators(outs.errLED, outs.frameLED, outs.statusLED),
		monitor.WithActuator(monitor.ActionBuzzer, outs.buzzer),
		monitor.WithRules(rules),
		monitor.WithChecksumMode(mode),
		monitor.WithLogger(l),
		monitor.WithPace(cfg.pace),
	}
	if export != nil {
		opts = append(opts, monitor.WithFrameExport(export))
	}
	if onSignal != nil {
		opts = append(opts, monitor.WithSignalHook(onSignal))
	}
	m, err := monitor.New(src, sink, opts...)
	if err != nil {
		l.Error("monitor_init_error", "error", err)
		cleanupBackend()
		return 1
	}

	// Ready while the loop runs and, when exporting, the listener is bound.
	metrics.SetReadinessFunc(func() bool {
		if srv != nil {
			select {
			case <-srv.Ready():
			default:
				return false
			}
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			l.Info("shutdown_signal", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := m.Run(ctx); err != nil {
		l.Error("monitor_error", "error", err)
	}
	cancel()
	outs.release()
	cleanupBackend()
	wg.Wait()
	_ = sink.Close()
	return 0
}

// diagWriter returns stdout, mirrored to the serial console when configured.
func diagWriter(cfg *appConfig, l *slog.Logger) (io.Writer, func(), error) {
	if cfg.console == "" {
		return os.Stdout, func() {}, nil
	}
	p, err := openSerialPort(cfg.console, cfg.consoleBaud, 0)
	if err != nil {
		return nil, func() {}, err
	}
	l.Info("console_open", "device", cfg.console, "baud", cfg.consoleBaud)
	return io.MultiWriter(os.Stdout, p), func() { _ = p.Close() }, nil
}
