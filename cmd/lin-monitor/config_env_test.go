package main

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := validConfig()
	t.Setenv("LIN_MONITOR_BAUD", "9600")
	t.Setenv("LIN_MONITOR_BACKEND", "sllin")
	t.Setenv("LIN_MONITOR_MDNS_ENABLE", "yes")
	t.Setenv("LIN_MONITOR_SERIAL_READ_TIMEOUT", "20ms")
	t.Setenv("LIN_MONITOR_BUZZER_OFF", "0s")
	t.Setenv("LIN_MONITOR_LOG_METRICS_INTERVAL", "5s")
	t.Setenv("LIN_MONITOR_MQTT_BROKER", "tcp://broker:1883")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 9600 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if base.backend != "sllin" {
		t.Fatalf("expected backend sllin, got %s", base.backend)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.serialReadTO != 20*time.Millisecond {
		t.Fatalf("expected serialReadTO 20ms got %v", base.serialReadTO)
	}
	if base.buzzerOff != 0 {
		t.Fatalf("expected continuous tone, got off=%v", base.buzzerOff)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
	if base.mqttBroker != "tcp://broker:1883" {
		t.Fatalf("expected broker override, got %q", base.mqttBroker)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{baud: 19200, checksum: "classic"}
	t.Setenv("LIN_MONITOR_BAUD", "9600")
	t.Setenv("LIN_MONITOR_CHECKSUM", "enhanced")
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 19200 {
		t.Fatalf("explicit flag should win, got %d", base.baud)
	}
	if base.checksum != "enhanced" {
		t.Fatalf("unset flag should take env, got %s", base.checksum)
	}
}

func TestApplyEnvOverrides_EmptyMetricsDisables(t *testing.T) {
	base := &appConfig{metricsAddr: ":9100", logLevel: "info"}
	t.Setenv("LIN_MONITOR_METRICS_ADDR", "")
	t.Setenv("LIN_MONITOR_LOG_LEVEL", "")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.metricsAddr != "" {
		t.Fatalf("empty env should disable metrics, got %q", base.metricsAddr)
	}
	if base.logLevel != "info" {
		t.Fatalf("empty env must not clear log level, got %q", base.logLevel)
	}
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	tests := []struct{ key, val string }{
		{"LIN_MONITOR_BAUD", "fast"},
		{"LIN_MONITOR_BAUD", "0"},
		{"LIN_MONITOR_MAX_CLIENTS", "-1"},
		{"LIN_MONITOR_PACE", "soon"},
		{"LIN_MONITOR_BUZZER_HOLD", "-1s"},
		{"LIN_MONITOR_MDNS_ENABLE", "maybe"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			base := validConfig()
			t.Setenv(tc.key, tc.val)
			if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}
