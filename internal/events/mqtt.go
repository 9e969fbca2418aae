package events

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kstaniek/go-lin-monitor/internal/logging"
)

const (
	DefaultClientID = "lin-monitor"
	publishTimeout  = 5 * time.Second
	connectTimeout  = 10 * time.Second
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// MQTT is a connected broker client.
type MQTT struct {
	client mqtt.Client
}

// Connect dials the broker with automatic reconnects enabled.
func Connect(cfg MQTTConfig) (*MQTT, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logging.L().Info("mqtt_connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.L().Warn("mqtt_connection_lost", "broker", cfg.Broker, "error", err)
	})
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		logging.L().Warn("mqtt_connect_pending", "broker", cfg.Broker)
	} else if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTT{client: c}, nil
}

// Publish sends payload with QoS 0 and waits for the client to accept it.
func (m *MQTT) Publish(topic string, payload []byte) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected")
	}
	tok := m.client.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return tok.Error()
}

// Close disconnects, allowing in-flight messages a short grace period.
func (m *MQTT) Close() { m.client.Disconnect(250) }
