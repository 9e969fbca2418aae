package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/cnl"
	"github.com/kstaniek/go-lin-monitor/internal/hub"
	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"github.com/kstaniek/go-lin-monitor/internal/server"
)

// initExport starts the cannelloni export server and, once it is bound, the
// mDNS advertisement. It returns the frame sink for the loop and the server
// (nil when export is disabled).
func initExport(ctx context.Context, cancel context.CancelFunc, cfg *appConfig, mode lin.ChecksumMode, l *slog.Logger) (func(lin.Frame), *server.Server) {
	if cfg.exportListen == "" {
		return nil, nil
	}
	h := initHub(cfg, l)
	srv := server.NewServer(
		server.WithHub(h),
		server.WithCodec(&cnl.Codec{Mode: mode}),
		server.WithLogger(l),
		server.WithMaxClients(cfg.maxClients),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadDeadline(cfg.clientReadTO),
	)
	srv.SetListenAddr(cfg.exportListen)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("export_server_error", "error", err)
			cancel()
		}
	}()
	go advertise(ctx, cfg, srv, l)
	return hub.NewFeed(ctx, h, exportQueueSize).Send, srv
}

// advertise registers the export listener via mDNS once it is bound.
func advertise(ctx context.Context, cfg *appConfig, srv *server.Server, l *slog.Logger) {
	if !cfg.mdnsEnable {
		return
	}
	select {
	case <-srv.Ready():
	case <-ctx.Done():
		return
	}
	port := listenPort(srv.Addr())
	cleanupMDNS, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
	go func() { <-ctx.Done(); cleanupMDNS() }()
}

// listenPort extracts the port from a bound address (host:port or :port).
func listenPort(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, perr := strconv.Atoi(p); perr == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, err := strconv.Atoi(addr[i+1:]); err == nil {
			return pn
		}
	}
	return 0
}

func shutdownExport(srv *server.Server, l *slog.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Warn("export_shutdown_error", "error", err)
	}
}
