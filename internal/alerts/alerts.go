// Package alerts fans out dynamic node alerts and job lifecycle events to
// external systems: MQTT for paging/ops tooling, Kafka for an audit trail.
// Both sinks are best-effort and never block the caller — publishing rides
// a bounded buffered channel, following the same non-blocking fan-out
// shape used for cross-node forwarding elsewhere in this package family.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/twmb/franz-go/pkg/kgo"

	"datanode/internal/logging"
)

// bufferCap bounds the pending-alert queue. When full, new alerts are
// dropped with a warning rather than blocking the caller.
const bufferCap = 1024

// Alert is a dynamic condition surfaced alongside the heartbeat response
// (spec §4.6/§4.7): disk near-full, a job stuck in overdraft, a location
// disabled, etc.
type Alert struct {
	Kind      string
	Message   string
	Detail    map[string]string
	Timestamp time.Time
}

// Config configures the MQTT and Kafka sinks. Either may be left zero to
// disable that sink.
type Config struct {
	MQTTAddr     string // host:port of the MQTT broker; empty disables MQTT
	MQTTTopic    string
	MQTTClientID string

	KafkaBrokers []string // empty disables Kafka
	KafkaTopic   string
}

// Publisher fans out alerts to the configured sinks via a single
// background goroutine draining a bounded channel.
type Publisher struct {
	cfg    Config
	logger *slog.Logger

	mqtt  *paho.Client
	kafka *kgo.Client

	ch     chan Alert
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

// New dials the configured sinks and starts the fan-out goroutine. Dial
// failures are logged, not fatal: a Publisher with no reachable sink still
// accepts and silently drops alerts, so callers never need a nil check.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		logger: logging.Default(logger).With("component", "alerts"),
		ch:     make(chan Alert, bufferCap),
		done:   make(chan struct{}),
	}

	if cfg.MQTTAddr != "" {
		if client, err := dialMQTT(ctx, cfg); err != nil {
			p.logger.Warn("mqtt dial failed, alerts will not be published", "addr", cfg.MQTTAddr, "error", err)
		} else {
			p.mqtt = client
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		client, err := kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers...))
		if err != nil {
			p.logger.Warn("kafka dial failed, alerts will not be published", "brokers", cfg.KafkaBrokers, "error", err)
		} else {
			p.kafka = client
		}
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

func dialMQTT(ctx context.Context, cfg Config) (*paho.Client, error) {
	conn, err := net.Dial("tcp", cfg.MQTTAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.MQTTAddr, err)
	}

	client := paho.NewClient(paho.ClientConfig{Conn: conn})
	_, err = client.Connect(ctx, &paho.Connect{
		KeepAlive:  30,
		ClientID:   cfg.MQTTClientID,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

// Publish enqueues alert for delivery. Non-blocking: if the buffer is
// full the alert is dropped and a warning is logged.
func (p *Publisher) Publish(a Alert) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	select {
	case p.ch <- a:
	default:
		p.logger.Warn("alert buffer full, dropping alert", "kind", a.Kind)
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case a, ok := <-p.ch:
			if !ok {
				return
			}
			p.deliver(a)
		case <-p.done:
			return
		}
	}
}

func (p *Publisher) deliver(a Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		p.logger.Warn("marshal alert failed", "kind", a.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.mqtt != nil {
		_, err := p.mqtt.Publish(ctx, &paho.Publish{
			Topic:   p.cfg.MQTTTopic,
			QoS:     0,
			Payload: payload,
		})
		if err != nil {
			p.logger.Warn("mqtt publish failed", "kind", a.Kind, "error", err)
		}
	}

	if p.kafka != nil {
		record := &kgo.Record{
			Topic: p.cfg.KafkaTopic,
			Key:   []byte(a.Kind),
			Value: payload,
		}
		if err := p.kafka.ProduceSync(ctx, record).FirstErr(); err != nil {
			p.logger.Warn("kafka produce failed", "kind", a.Kind, "error", err)
		}
	}
}

// Close stops the fan-out goroutine and releases sink connections.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	if p.mqtt != nil {
		_, _ = p.mqtt.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	if p.kafka != nil {
		p.kafka.Close()
	}
	return nil
}
