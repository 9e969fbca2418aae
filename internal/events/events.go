// Package events delivers signal transitions to the state store and an
// MQTT broker without blocking the monitor loop.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/go-lin-monitor/internal/logging"
	"github.com/kstaniek/go-lin-monitor/internal/metrics"
	"github.com/kstaniek/go-lin-monitor/internal/monitor"
	"github.com/kstaniek/go-lin-monitor/internal/store"
	"github.com/kstaniek/go-lin-monitor/internal/transport"
)

const (
	DefaultTopic  = "vehicle/lin/signals"
	DefaultBuffer = 64
)

// ErrQueueFull is returned by Transition when the worker is behind.
var ErrQueueFull = errors.New("event queue full")

// Signal is the JSON document published for every transition.
type Signal struct {
	Name        string    `json:"name"`
	State       bool      `json:"state"`
	ID          uint8     `json:"id"`
	At          time.Time `json:"at"`
	Transitions uint64    `json:"transitions,omitempty"`
}

// PublishFunc sends payload to topic.
type PublishFunc func(topic string, payload []byte) error

// Publisher persists and publishes transitions from a single worker.
type Publisher struct {
	topic   string
	publish PublishFunc
	store   *store.Store
	tx      *transport.AsyncTx[Signal]
}

// NewPublisher starts the worker. publish and st may each be nil to skip
// that destination.
func NewPublisher(ctx context.Context, topic string, publish PublishFunc, st *store.Store, buf int) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if buf <= 0 {
		buf = DefaultBuffer
	}
	p := &Publisher{topic: topic, publish: publish, store: st}
	p.tx = transport.NewAsyncTx(ctx, buf, p.deliver, transport.Hooks{
		OnAfter: metrics.IncEvent,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrEventDrop)
			return ErrQueueFull
		},
	})
	return p
}

// Transition enqueues a rule transition. It never blocks; a full queue
// drops the event.
func (p *Publisher) Transition(t monitor.Transition) {
	_ = p.tx.Send(Signal{Name: t.Rule, State: t.State, ID: t.ID, At: t.At})
}

// Close stops the worker.
func (p *Publisher) Close() { p.tx.Close() }

func (p *Publisher) deliver(s Signal) error {
	if p.store != nil {
		rec, err := p.store.RecordSignal(s.Name, s.State, s.At)
		if err != nil {
			metrics.IncError(metrics.ErrStore)
			logging.L().Warn("state_store_error", "signal", s.Name, "error", err)
		} else {
			s.Transitions = rec.Transitions
		}
	}
	logging.L().Info("signal_transition", "signal", s.Name, "state", s.State, "id", fmt.Sprintf("0x%02X", s.ID))
	if p.publish == nil {
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := p.publish(p.topic, payload); err != nil {
		metrics.IncError(metrics.ErrEventPublish)
		logging.L().Warn("mqtt_publish_error", "topic", p.topic, "error", err)
		return err
	}
	return nil
}
