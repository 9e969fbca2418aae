package main

import (
	"context"
	"log/slog"

	"github.com/kstaniek/go-lin-monitor/internal/events"
	"github.com/kstaniek/go-lin-monitor/internal/monitor"
	"github.com/kstaniek/go-lin-monitor/internal/store"
)

// initEvents opens the state store and MQTT connection when configured and
// returns the loop's transition hook. The hook is nil when both are off.
func initEvents(ctx context.Context, cfg *appConfig, l *slog.Logger) (func(monitor.Transition), func(), error) {
	if cfg.stateDB == "" && cfg.mqttBroker == "" {
		return nil, func() {}, nil
	}
	var (
		st      *store.Store
		client  *events.MQTT
		publish events.PublishFunc
	)
	closeAll := func() {
		if client != nil {
			client.Close()
		}
		if st != nil {
			_ = st.Close()
		}
	}
	if cfg.stateDB != "" {
		var err error
		if st, err = store.Open(cfg.stateDB); err != nil {
			return nil, func() {}, err
		}
		recs, err := st.Signals()
		if err != nil {
			l.Warn("state_db_read_error", "path", cfg.stateDB, "error", err)
		}
		for _, r := range recs {
			l.Info("signal_restored", "signal", r.Name, "state", r.State, "transitions", r.Transitions, "at", r.At)
		}
		l.Info("state_db_open", "path", cfg.stateDB, "signals", len(recs))
	}
	if cfg.mqttBroker != "" {
		var err error
		client, err = events.Connect(events.MQTTConfig{
			Broker:   cfg.mqttBroker,
			ClientID: cfg.mqttClientID,
			Username: cfg.mqttUser,
			Password: cfg.mqttPass,
		})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		publish = client.Publish
		l.Info("mqtt_events_enabled", "broker", cfg.mqttBroker, "topic", cfg.mqttTopic)
	}
	pub := events.NewPublisher(ctx, cfg.mqttTopic, publish, st, eventQueueSize)
	return pub.Transition, func() { pub.Close(); closeAll() }, nil
}
