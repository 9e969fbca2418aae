package main

import (
	"log/slog"

	"github.com/kstaniek/go-lin-monitor/internal/hub"
)

func initHub(cfg *appConfig, l *slog.Logger) *hub.Hub {
	h := hub.New()
	h.OutBufSize = cfg.hubBuffer
	p, ok := hub.ParsePolicy(cfg.hubPolicy)
	if !ok {
		l.Warn("unknown_hub_policy", "policy", cfg.hubPolicy, "used", "drop")
	}
	h.Policy = p
	l.Info("hub_config", "policy", cfg.hubPolicy, "buffer", h.OutBufSize)
	return h
}
