// Package telemetry publishes state transitions and periodic status
// over MQTT. Publishing is decoupled from the tick loop through a
// bounded queue; a slow or absent broker drops messages instead of
// stalling the saber.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"saberd/config"
)

const defaultQueueSize = 64

type message struct {
	topic   string
	payload []byte
}

type transitionPayload struct {
	Kind string    `json:"kind"`
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

type statusPayload struct {
	PowerState     string    `json:"power_state"`
	Mode           string    `json:"mode"`
	BatteryVoltage float64   `json:"battery_voltage"`
	At             time.Time `json:"at"`
}

// Publisher implements the transition sink of the state logger.
type Publisher struct {
	client  paho.Client
	prefix  string
	timeout time.Duration

	queue chan message
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewPublisher connects to the broker and starts the publish worker.
func NewPublisher(conf config.TelemetryConfig) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(conf.Timeout) {
		return nil, fmt.Errorf("broker connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	size := conf.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	p := &Publisher{
		client:  client,
		prefix:  conf.TopicPrefix,
		timeout: conf.Timeout,
		queue:   make(chan message, size),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.worker()
	return p, nil
}

// Transition queues a state transition for publishing. Never blocks;
// a full queue drops the message.
func (p *Publisher) Transition(kind, from, to string) {
	p.enqueue(p.prefix+"/transition", transitionPayload{
		Kind: kind, From: from, To: to, At: time.Now(),
	})
}

// Status queues a periodic status report.
func (p *Publisher) Status(powerState, mode string, batteryVoltage float64) {
	p.enqueue(p.prefix+"/status", statusPayload{
		PowerState: powerState, Mode: mode,
		BatteryVoltage: batteryVoltage, At: time.Now(),
	})
}

func (p *Publisher) enqueue(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Can't marshal telemetry payload", "error", err)
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload}:
	default:
		slog.Debug("Telemetry queue full, dropping message", "topic", topic)
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case m := <-p.queue:
			token := p.client.Publish(m.topic, 0, false, m.payload)
			if !token.WaitTimeout(p.timeout) {
				slog.Debug("Telemetry publish timeout", "topic", m.topic)
				continue
			}
			if err := token.Error(); err != nil {
				slog.Warn("Telemetry publish failed", "topic", m.topic, "error", err)
			}
		}
	}
}

// Close stops the worker and disconnects from the broker.
func (p *Publisher) Close() {
	close(p.done)
	p.wg.Wait()
	p.client.Disconnect(1000)
}
